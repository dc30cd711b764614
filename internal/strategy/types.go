// Package strategy defines the declarative Strategy/Step plan (spec §3) and
// the loader that parses, validates, and indexes strategy files at startup
// (spec §4.2). The YAML shape is modeled directly on the scenario/step
// loader in integration_tests/framework/runner.go from the teacher repo —
// the closest precedent in the corpus to a declarative, YAML-driven step
// pipeline.
package strategy

// OnError names what a Step does after its retry policy is exhausted
// (spec §3).
type OnError string

const (
	// OnErrorAbort appends a structured error and stops the phase.
	OnErrorAbort OnError = "abort"
	// OnErrorContinue appends a structured error and keeps going.
	OnErrorContinue OnError = "continue"
	// OnErrorRetry is a step-level hint already consumed by the retry
	// policy; after retries are exhausted it behaves like OnErrorContinue.
	OnErrorRetry OnError = "retry"
)

// ResolverHint names how a Variable is filled during the Fill phase
// (spec §3, §4.3).
type ResolverHint string

const (
	// ResolverFromRequest pulls the value from State fields (topic,
	// identity, etc).
	ResolverFromRequest ResolverHint = "from_request"
	// ResolverFromScope pulls the value from the Scope phase's output
	// (category, time_window, depth).
	ResolverFromScope ResolverHint = "from_scope"
	// ResolverLLMFill batches the variable into the Fill phase's single
	// LLM categorization call.
	ResolverLLMFill ResolverHint = "llm_fill"
)

// Variable is one named strategy input (spec §3).
type Variable struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type"`
	Default  any          `yaml:"default"`
	Resolver ResolverHint `yaml:"resolver"`
	// Description is surfaced in the llm_fill batched prompt so the model
	// knows what each missing name means (spec §4.3).
	Description string `yaml:"description"`
	// Required, when true and Resolver is llm_fill, makes an absent
	// default a hard KindConfig error instead of silently leaving the
	// variable unset (spec §4.3).
	Required bool `yaml:"required"`
}

// Step is one unit of the research phase (spec §3).
type Step struct {
	Name string `yaml:"name"`
	// Use names the adapter key (or capability, resolved via registry
	// fallback) this step invokes.
	Use    string         `yaml:"use"`
	Params map[string]any `yaml:"params"`
	// When is a boolean expression over State+variables (see
	// internal/exprval). Empty means always-run.
	When string `yaml:"when"`
	// ForEach is a dotted path into State producing a list to fan out
	// over. Empty means the step runs once.
	ForEach string `yaml:"for_each"`
	// As names the loop variable bound to each element; defaults to
	// "item".
	As string `yaml:"as"`
	// SaveAs names the State key the step's result (or concatenated
	// fan-out results) is recorded under.
	SaveAs string `yaml:"save_as"`

	OnError  OnError `yaml:"on_error"`
	RetryMax int     `yaml:"retry_max"`

	// TimeoutSeconds overrides the adapter-kind default (30s search, 90s
	// LLM synthesis) from spec §4.4 when set.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoopVar returns the loop variable name, defaulting to "item" (spec §3).
func (s Step) LoopVar() string {
	if s.As == "" {
		return "item"
	}
	return s.As
}

// EffectiveRetryMax returns s.RetryMax clamped into [0,5], defaulting to 2
// when unset (spec §3: "default 2, bounded <= 5").
func (s Step) EffectiveRetryMax() int {
	if s.RetryMax <= 0 {
		return 2
	}
	if s.RetryMax > 5 {
		return 5
	}
	return s.RetryMax
}

// OutputSpec describes the required shape of a strategy's finalized output
// (spec §3).
type OutputSpec struct {
	RequiredSections int    `yaml:"required_sections"`
	CitationMin      int    `yaml:"citation_min"`
	CitationMax      int    `yaml:"citation_max"`
	WriterPrompt     string `yaml:"writer_prompt"`
}

// Strategy is a declarative research plan loaded at startup (spec §3).
type Strategy struct {
	Slug       string     `yaml:"slug"`
	Version    string     `yaml:"version"`
	Category   string     `yaml:"category"`
	TimeWindow string     `yaml:"time_window"`
	Depth      string     `yaml:"depth"`
	Variables  []Variable `yaml:"variables"`
	ToolChain  []Step     `yaml:"tool_chain"`
	OutputSpec OutputSpec `yaml:"output_spec"`
}

// Key identifies a strategy by its (category, time_window, depth) tuple,
// used by the Strategy Loader's secondary index (spec §4.2).
type Key struct {
	Category   string
	TimeWindow string
	Depth      string
}
