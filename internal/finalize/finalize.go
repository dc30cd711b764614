// Package finalize implements the Finalize phase (spec §3, §4.7): cluster
// the deduped Evidence into topical groups, analyze each cluster into a
// candidate Section, write the final prose per section, then cite — resolve
// each Section's claims back to specific Evidence indices. A quality floor
// (OutputSpec.RequiredSections/CitationMin) triggers one bounded retry of
// the write+cite pair before the run fails permanently (spec §4.7).
package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// Registry is the subset of *toolregistry.Registry Finalize needs.
type Registry interface {
	Lookup(use string) (toolregistry.Adapter, bool)
}

// Synthesizer runs the Finalize phase's four sub-stages.
type Synthesizer struct {
	registry Registry
	tracer   telemetry.Tracer
	settings settings.Settings
}

// New builds a Synthesizer.
func New(registry Registry, tracer telemetry.Tracer, sett settings.Settings) *Synthesizer {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Synthesizer{registry: registry, tracer: tracer, settings: sett}
}

// Run executes cluster -> analyze -> write -> cite against st.Evidence,
// retrying write+cite once if the result falls short of s.OutputSpec's
// quality floor (spec §4.7).
func (f *Synthesizer) Run(ctx context.Context, s *strategy.Strategy, st *state.State) error {
	ctx, span := f.tracer.Start(ctx, "finalize")
	defer span.End()

	if len(st.Evidence) == 0 {
		return fmt.Errorf("finalize: %w", orcherr.New(orcherr.KindInput, "finalize.cluster", "no evidence to synthesize"))
	}

	clusters, err := f.clusterWithRetry(ctx, st.Evidence)
	if err != nil {
		st.AppendError(state.ErrorRecord{
			Phase:   state.PhaseFinalized,
			Step:    "finalize.cluster",
			Kind:    orcherr.KindOf(err),
			Message: err.Error(),
			At:      time.Now(),
		})
		span.RecordError(err)
		if errors.Is(err, errMalformedClusterJSON) {
			// spec §8: a second malformed cluster response in a row skips
			// the live write call entirely and yields one flat section
			// whose body is a deterministic, non-LLM fallback summary.
			return f.finalizeWithDeterministicFallback(span, st)
		}
		// spec §4.6: "On LLM failure the fallback is a single cluster
		// holding everything" — any other clustering failure (no adapter
		// registered, timeout, ...) degrades synthesis quality but must
		// not fail the whole phase.
		clusters = singleCluster(st.Evidence)
	}

	var sections []evidence.Section
	var citations []evidence.Citation
	for attempt := 1; attempt <= 2; attempt++ {
		sections, err = f.analyzeAndWrite(ctx, s, clusters, st.Evidence)
		if err != nil {
			return fmt.Errorf("finalize: write: %w", err)
		}
		citations = f.cite(sections, st.Evidence)

		if meetsQualityFloor(s.OutputSpec, sections, citations) {
			break
		}
		if attempt == 2 {
			return fmt.Errorf("finalize: %w", orcherr.New(orcherr.KindPermanent, "finalize.quality_floor",
				fmt.Sprintf("output has %d sections and %d citations after retry, below required_sections=%d citation_min=%d",
					len(sections), len(citations), s.OutputSpec.RequiredSections, s.OutputSpec.CitationMin)))
		}
	}

	span.RecordEvidence(len(citations), "")
	st.SetSections(sections)
	st.SetCitations(citations)
	return st.Transition(state.PhaseFinalized)
}

// finalizeWithDeterministicFallback sets st to a single degraded Section
// built without any further LLM call (spec §8) and transitions the phase.
func (f *Synthesizer) finalizeWithDeterministicFallback(span telemetry.Span, st *state.State) error {
	sections := []evidence.Section{{
		Heading:      "Summary",
		Body:         deterministicFallbackSummary(st.Evidence),
		CitedIndices: allIndices(len(st.Evidence)),
	}}
	citations := f.cite(sections, st.Evidence)
	span.RecordEvidence(len(citations), "")
	st.SetSections(sections)
	st.SetCitations(citations)
	return st.Transition(state.PhaseFinalized)
}

// deterministicFallbackSummary lists every collected source by title. It
// calls no adapter and reads nothing but ev, so it is reproducible given
// the same evidence set (spec §8's literal boundary case).
func deterministicFallbackSummary(ev []evidence.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated synthesis was unavailable after two malformed model responses. %d source(s) were collected:\n", len(ev))
	for i, e := range ev {
		title := e.Title
		if title == "" {
			title = e.URL
		}
		fmt.Fprintf(&b, "[%d] %s\n", i, title)
	}
	return b.String()
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func meetsQualityFloor(spec strategy.OutputSpec, sections []evidence.Section, citations []evidence.Citation) bool {
	if spec.RequiredSections > 0 && len(sections) < spec.RequiredSections {
		return false
	}
	if len(citations) < spec.CitationMin {
		return false
	}
	if spec.CitationMax > 0 && len(citations) > spec.CitationMax {
		return false
	}
	return true
}

type cluster struct {
	Topic   string
	Indices []int
}

// errMalformedClusterJSON marks a cluster response that failed to parse as
// JSON, distinct from other cluster failures (missing adapter, timeout,
// ...) so Run can apply spec §8's retry-once-then-deterministic-fallback
// rule specifically to this case.
var errMalformedClusterJSON = errors.New("finalize: cluster response was not valid JSON")

// clusterWithRetry calls cluster once, and again exactly once more if the
// first attempt's response was malformed JSON (spec §8: "LLM returns
// malformed JSON -> synthesizer retries once"). Any other failure, or a
// second malformed response, is returned to the caller unretried.
func (f *Synthesizer) clusterWithRetry(ctx context.Context, ev []evidence.Evidence) ([]cluster, error) {
	clusters, err := f.cluster(ctx, ev)
	if err == nil || !errors.Is(err, errMalformedClusterJSON) {
		return clusters, err
	}
	return f.cluster(ctx, ev)
}

// singleCluster is the spec §4.6 fallback when clustering fails: one
// cluster holding every Evidence index, labeled generically so downstream
// analyze+write still produces a Section instead of failing the phase.
func singleCluster(ev []evidence.Evidence) []cluster {
	indices := make([]int, len(ev))
	for i := range ev {
		indices[i] = i
	}
	return []cluster{{Topic: "General", Indices: indices}}
}

// cluster groups Evidence by LLM-assigned topic label. Grounded on the same
// llm_completion capability every other synthesis sub-stage uses; a single
// call classifies every Evidence item at once (cheaper than one call per
// item, mirroring fill's batching rationale).
func (f *Synthesizer) cluster(ctx context.Context, ev []evidence.Evidence) ([]cluster, error) {
	adapter, ok := f.registry.Lookup(string(toolregistry.CapabilityLLMCompletion))
	if !ok {
		return nil, orcherr.New(orcherr.KindConfig, "finalize.cluster", "no llm_completion adapter registered")
	}

	var b strings.Builder
	b.WriteString("Group the following numbered sources into topical clusters. Respond with a JSON array of {\"topic\": string, \"indices\": [int]}.\n\n")
	for i, e := range ev {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, e.Title, e.Snippet)
	}

	modelCfg := f.settings.ModelFor("cluster")
	results, _, err := adapter.Call(ctx, map[string]any{
		"prompt":      b.String(),
		"system":      "You group research sources into topical clusters and respond with JSON only.",
		"model":       modelCfg.Model,
		"max_tokens":  orDefault(modelCfg.MaxTokens, 2048),
		"temperature": 0.0,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, orcherr.New(orcherr.KindInternal, "finalize.cluster", "adapter returned no result")
	}

	var raw []struct {
		Topic   string `json:"topic"`
		Indices []int  `json:"indices"`
	}
	if err := json.Unmarshal([]byte(extractJSONArray(results[0].Snippet)), &raw); err != nil {
		return nil, orcherr.Wrap(orcherr.KindPermanent, "finalize.cluster.parse", fmt.Errorf("%w: %v", errMalformedClusterJSON, err))
	}

	clusters := make([]cluster, 0, len(raw))
	for _, r := range raw {
		clusters = append(clusters, cluster{Topic: r.Topic, Indices: r.Indices})
	}
	return clusters, nil
}

// analyzeAndWrite turns each cluster into one Section: analyze distills the
// cluster's evidence into a thesis, write expands it into prose. Both steps
// share one llm_completion call per cluster to keep the call count linear
// in cluster count rather than quadratic.
func (f *Synthesizer) analyzeAndWrite(ctx context.Context, s *strategy.Strategy, clusters []cluster, ev []evidence.Evidence) ([]evidence.Section, error) {
	adapter, ok := f.registry.Lookup(string(toolregistry.CapabilityLLMCompletion))
	if !ok {
		return nil, orcherr.New(orcherr.KindConfig, "finalize.write", "no llm_completion adapter registered")
	}

	sections := make([]evidence.Section, 0, len(clusters))
	for _, c := range clusters {
		var b strings.Builder
		if s.OutputSpec.WriterPrompt != "" {
			b.WriteString(s.OutputSpec.WriterPrompt)
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Write a briefing section on: %s\n\nSources:\n", c.Topic)
		for _, idx := range c.Indices {
			if idx < 0 || idx >= len(ev) {
				continue
			}
			fmt.Fprintf(&b, "[%d] %s: %s\n", idx, ev[idx].Title, ev[idx].Snippet)
		}
		b.WriteString("\nCite sources inline as [n] using the bracketed indices above.")

		modelCfg := f.settings.ModelFor("write")
		results, _, err := adapter.Call(ctx, map[string]any{
			"prompt":      b.String(),
			"system":      "You write concise, well-cited research briefing sections.",
			"model":       modelCfg.Model,
			"max_tokens":  orDefault(modelCfg.MaxTokens, 1024),
			"temperature": 0.3,
		})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			continue
		}
		sections = append(sections, evidence.Section{
			Heading:      c.Topic,
			Body:         results[0].Snippet,
			CitedIndices: c.Indices,
		})
	}
	return sections, nil
}

// cite resolves each Section's CitedIndices into Citation records,
// deduplicating by the originating Evidence's normalized identity so the
// same source cited from two sections still yields one Citation (spec
// §4.7: citation list is deduplicated the same way Evidence is).
func (f *Synthesizer) cite(sections []evidence.Section, ev []evidence.Evidence) []evidence.Citation {
	seen := make(map[[2]string]bool)
	var citations []evidence.Citation
	for _, sec := range sections {
		for _, idx := range sec.CitedIndices {
			if idx < 0 || idx >= len(ev) {
				continue
			}
			e := ev[idx]
			u, t := e.Identity()
			k := [2]string{u, t}
			if seen[k] {
				continue
			}
			seen[k] = true
			citations = append(citations, evidence.Citation{
				Title:       e.Title,
				URL:         e.URL,
				Snippet:     e.Snippet,
				PublishedAt: e.PublishedAt,
			})
		}
	}
	return citations
}

func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)
	i := strings.Index(text, "[")
	j := strings.LastIndex(text, "]")
	if i < 0 || j < 0 || j < i {
		return "[]"
	}
	return text[i : j+1]
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
