// Package research implements the Research phase (spec §3, §4.5): it runs
// a Strategy's tool_chain steps in order against the Step Executor inside
// a deadline-bound context, then applies the Evidence cap and
// URL/title dedup rules before transitioning State to RESEARCHED.
package research

import (
	"context"
	"fmt"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
)

// Executor is the subset of *step.Executor the phase controller needs.
type Executor interface {
	Run(ctx context.Context, s *strategy.Step, st *state.State) error
}

// Controller runs the Research phase.
type Controller struct {
	executor Executor
	tracer   telemetry.Tracer
	limits   settings.Limits
}

// New builds a Controller.
func New(executor Executor, tracer telemetry.Tracer, limits settings.Limits) *Controller {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Controller{executor: executor, tracer: tracer, limits: limits}
}

// Run executes st.RuntimePlan (the step sequence locked by Fill) against
// st within the configured phase deadline, in declaration order (spec
// §4.5: "steps run in the order declared; for_each fans out within a
// step, not across steps"). Each step gets its own span nested under the
// phase span (spec §4.8). s is consulted only for its Strategy-level
// metadata (e.g. OutputSpec bounds downstream); Research never mutates
// s.ToolChain, only st.RuntimePlan's already-locked copy (spec §3).
func (c *Controller) Run(ctx context.Context, s *strategy.Strategy, st *state.State) error {
	ctx, cancel := context.WithTimeout(ctx, c.limits.PhaseDeadline())
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "research")
	defer span.End()

	plan := st.RuntimePlan
	if plan == nil {
		plan = s.ToolChain
	}
	for i := range plan {
		step := &plan[i]
		if err := c.executor.Run(ctx, step, st); err != nil {
			span.RecordError(err)
			return fmt.Errorf("research: step %q: %w", step.Name, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("research: deadline exceeded after step %q: %w", step.Name, ctx.Err())
		}
	}

	dedupAndCap(st, c.limits.EvidenceCapOrDefault(), c.limits.PerToolEvidenceCapOrDefault())
	reportEvidenceByTool(span, st.Evidence)
	return st.Transition(state.PhaseResearched)
}

// dedupAndCap removes Evidence whose normalized (URL, title) identity has
// already been seen, then applies the per-tool cap and finally the
// cumulative cap, evicting the oldest remaining records FIFO in each case
// (spec §4.5: "dedup by normalized URL/title; enforce a cumulative evidence
// cap ... and per-tool caps"). The per-tool pass runs first so a single
// chatty adapter cannot crowd the cumulative budget out from under the rest
// of the tool chain. Dropped duplicates count toward EvictedCount alongside
// cap evictions.
func dedupAndCap(st *state.State, cap int, perToolCap int) {
	seen := make(map[[2]string]bool, len(st.Evidence))
	deduped := make([]evidence.Evidence, 0, len(st.Evidence))
	evicted := 0
	for _, ev := range st.Evidence {
		u, t := ev.Identity()
		key := [2]string{u, t}
		if seen[key] {
			evicted++
			continue
		}
		seen[key] = true
		deduped = append(deduped, ev)
	}

	deduped, evicted = capPerTool(deduped, perToolCap, evicted)

	if cap > 0 && len(deduped) > cap {
		evicted += len(deduped) - cap
		deduped = deduped[len(deduped)-cap:]
	}

	st.ReplaceEvidence(deduped, evicted)
}

// reportEvidenceByTool stamps the final post-cap Evidence count per
// SourceTool onto span so a trace backend shows which adapters actually
// contributed to the surviving evidence set (spec §4.8).
func reportEvidenceByTool(span telemetry.Span, ev []evidence.Evidence) {
	byTool := make(map[string]int)
	for _, e := range ev {
		byTool[e.SourceTool]++
	}
	for tool, count := range byTool {
		span.RecordEvidence(count, tool)
	}
}

// capPerTool keeps at most perToolCap of the most recent records from each
// SourceTool, preserving relative order, and returns the running evicted
// count. perToolCap <= 0 disables the per-tool cap entirely.
func capPerTool(deduped []evidence.Evidence, perToolCap int, evicted int) ([]evidence.Evidence, int) {
	if perToolCap <= 0 {
		return deduped, evicted
	}
	counts := make(map[string]int, len(deduped))
	keep := make([]bool, len(deduped))
	for i := len(deduped) - 1; i >= 0; i-- {
		tool := deduped[i].SourceTool
		if counts[tool] < perToolCap {
			counts[tool]++
			keep[i] = true
		}
	}
	capped := make([]evidence.Evidence, 0, len(deduped))
	for i, ev := range deduped {
		if keep[i] {
			capped = append(capped, ev)
		} else {
			evicted++
		}
	}
	return capped, evicted
}
