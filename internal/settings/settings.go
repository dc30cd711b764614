// Package settings loads the operator-provided settings document named in
// spec §6: model identifiers/params per LLM purpose, orchestration limits,
// and citation defaults. The document is validated against an embedded
// JSON Schema with github.com/santhosh-tekuri/jsonschema/v6, the same
// compile-once/validate-decoded-document discipline
// registry/service.go's validatePayloadJSONAgainstSchema applies to tool
// payloads (spec §6).
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// schemaDoc is the JSON Schema every settings document must satisfy before
// it is decoded into a Settings value. Temperature/top_p are bounded to
// the ranges every wired provider adapter accepts; limits and defaults are
// left permissive since Limits/Defaults already apply sane fallbacks for
// zero/absent values.
const schemaDoc = `{
	"type": "object",
	"properties": {
		"models": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"model": {"type": "string"},
					"temperature": {"type": "number", "minimum": 0, "maximum": 2},
					"max_tokens": {"type": "integer", "minimum": 0},
					"top_p": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		},
		"limits": {
			"type": "object",
			"properties": {
				"phase_deadline_secs": {"type": "integer", "minimum": 0},
				"evidence_cap": {"type": "integer", "minimum": 0},
				"per_tool_evidence_cap": {"type": "integer", "minimum": 0},
				"for_each_concurrency": {"type": "integer", "minimum": 0},
				"retry_max": {"type": "integer", "minimum": 0, "maximum": 5}
			}
		},
		"defaults": {
			"type": "object",
			"properties": {
				"citation_min": {"type": "integer", "minimum": 0},
				"citation_max": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(schemaDoc), &doc); err != nil {
		panic(fmt.Sprintf("settings: embedded schema is invalid JSON: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("settings.json", doc); err != nil {
		panic(fmt.Sprintf("settings: embedded schema resource rejected: %v", err))
	}
	s, err := c.Compile("settings.json")
	if err != nil {
		panic(fmt.Sprintf("settings: embedded schema does not compile: %v", err))
	}
	return s
}

// ModelSettings configures one LLM call purpose (scope, fill, cluster,
// analyze, write).
type ModelSettings struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// Limits configures the orchestration bounds from spec §6.
type Limits struct {
	PhaseDeadlineSecs int `yaml:"phase_deadline_secs"`
	EvidenceCap       int `yaml:"evidence_cap"`
	// PerToolEvidenceCap bounds how many Evidence records survive
	// deduplication from any single SourceTool, applied per spec §4.5
	// alongside the cumulative EvidenceCap so one chatty adapter cannot
	// crowd out the rest of the tool chain's results.
	PerToolEvidenceCap int `yaml:"per_tool_evidence_cap"`
	ForEachConcurrency int `yaml:"for_each_concurrency"`
	RetryMax           int `yaml:"retry_max"`
}

// Defaults configures the citation bounds from spec §6.
type Defaults struct {
	CitationMin int `yaml:"citation_min"`
	CitationMax int `yaml:"citation_max"`
}

// Settings is the root settings document.
type Settings struct {
	Models   map[string]ModelSettings `yaml:"models"`
	Limits   Limits                   `yaml:"limits"`
	Defaults Defaults                 `yaml:"defaults"`
}

// PhaseDeadline returns Limits.PhaseDeadlineSecs as a time.Duration,
// defaulting to 180s per spec §4.5.
func (l Limits) PhaseDeadline() time.Duration {
	if l.PhaseDeadlineSecs <= 0 {
		return 180 * time.Second
	}
	return time.Duration(l.PhaseDeadlineSecs) * time.Second
}

// EvidenceCapOrDefault returns Limits.EvidenceCap, defaulting to 200 per
// spec §4.5.
func (l Limits) EvidenceCapOrDefault() int {
	if l.EvidenceCap <= 0 {
		return 200
	}
	return l.EvidenceCap
}

// PerToolEvidenceCapOrDefault returns Limits.PerToolEvidenceCap, defaulting
// to 50 per spec §4.5 (zero or unset means "apply the default", not "no
// per-tool limit" — an operator who genuinely wants an unbounded per-tool
// contribution still has the cumulative EvidenceCap as a backstop).
func (l Limits) PerToolEvidenceCapOrDefault() int {
	if l.PerToolEvidenceCap <= 0 {
		return 50
	}
	return l.PerToolEvidenceCap
}

// ForEachConcurrencyOrDefault returns Limits.ForEachConcurrency,
// defaulting to 4 per spec §5.
func (l Limits) ForEachConcurrencyOrDefault() int {
	if l.ForEachConcurrency <= 0 {
		return 4
	}
	return l.ForEachConcurrency
}

// RetryMaxOrDefault returns Limits.RetryMax, defaulting to 2 per spec §4.4.
func (l Limits) RetryMaxOrDefault() int {
	if l.RetryMax <= 0 {
		return 2
	}
	return l.RetryMax
}

// CitationMinOrDefault returns Defaults.CitationMin, defaulting to 3.
func (d Defaults) CitationMinOrDefault() int {
	if d.CitationMin <= 0 {
		return 3
	}
	return d.CitationMin
}

// CitationMaxOrDefault returns Defaults.CitationMax, defaulting to 10.
func (d Defaults) CitationMaxOrDefault() int {
	if d.CitationMax <= 0 {
		return 10
	}
	return d.CitationMax
}

// ModelFor returns the ModelSettings configured for purpose (e.g.
// "write"), or a zero-value ModelSettings if unconfigured — adapters must
// tolerate an empty Model identifier by falling back to their own default.
func (s Settings) ModelFor(purpose string) ModelSettings {
	return s.Models[purpose]
}

// Load reads, schema-validates, and parses a settings document from path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- settings path is an operator-provided config location
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	// jsonschema validates JSON-native values (map[string]any, not
	// map[interface{}]interface{}); round-trip through JSON to normalize.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: normalize %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return Settings{}, fmt.Errorf("settings: normalize %s: %w", path, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Settings{}, fmt.Errorf("settings: %s failed schema validation: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Default returns a Settings value with every limit/default at its
// spec-mandated default and no models configured — adapters fall back to
// their own DefaultModel in that case.
func Default() Settings {
	return Settings{
		Limits:   Limits{},
		Defaults: Defaults{},
	}
}
