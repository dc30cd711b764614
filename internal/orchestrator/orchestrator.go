// Package orchestrator composes the four research phases (scope, fill,
// research, finalize) around one State value and exposes the inbound
// RunResearch contract (spec §6). It owns the State for the lifetime of a
// single execution, drives the INIT->SCOPED->FILLED->RESEARCHED->
// FINALIZED|FAILED state machine (spec §4.6), and stamps the top-level
// trace span every phase/step span nests under (spec §6's observability
// sink contract).
//
// Modeled on runtime/agent/runtime.Runtime's role as "central registry +
// lifecycle owner", generalized from agent/toolset/model registries plus a
// planner loop to a strategy/adapter registry plus a fixed four-phase
// pipeline.
package orchestrator

import (
	"context"
	"time"

	"github.com/mberto10/researchctl/internal/clock"
	"github.com/mberto10/researchctl/internal/fill"
	"github.com/mberto10/researchctl/internal/finalize"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/research"
	"github.com/mberto10/researchctl/internal/scope"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/step"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// ResearchRequest is the inbound request shape from spec §6: "RunResearch(request)
// where request = {topic, identity, strategy_hint?, depth_override?, callback?}".
type ResearchRequest struct {
	Topic         string
	Identity      state.Identity
	StrategyHint  string
	DepthOverride string
	// Callback is opaque to the core; the API/runner layer interprets it
	// (e.g. a webhook URL) and is carried through only for the Delivery
	// sink's benefit (spec §6).
	Callback any
}

// Section is one heading+body block of the delivered briefing (spec §6's
// "sections: [{heading, body}]" — citation indices are an internal
// synthesis detail, dropped from the external payload).
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Citation is one promoted source in the delivered briefing (spec §6).
type Citation struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Metadata carries the briefing's diagnostic counters (spec §6, §7:
// "metadata lists the count of step errors and skipped steps").
type Metadata struct {
	EvidenceCount int      `json:"evidence_count"`
	StrategySlug  string   `json:"strategy_slug"`
	ErrorCount    int      `json:"error_count"`
	SkippedCount  int      `json:"skipped_count"`
	EvictedCount  int      `json:"evicted_count"`
	Tags          []string `json:"tags,omitempty"`
}

// Briefing is the stable external contract from spec §6.
type Briefing struct {
	ResearchTopic string     `json:"research_topic"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	StrategySlug  string     `json:"strategy_slug"`
	Sections      []Section  `json:"sections"`
	Citations     []Citation `json:"citations"`
	Metadata      Metadata   `json:"metadata"`
}

// Status is the briefing's top-level outcome (spec §7).
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ResearchResult is RunResearch's return shape (spec §6: "{status, briefing?, error?}").
type ResearchResult struct {
	Status   Status
	Briefing *Briefing
	Error    string
}

// StrategyRegistry is the subset of *strategy.Registry the Orchestrator
// needs.
type StrategyRegistry interface {
	Lookup(slug string) (*strategy.Strategy, bool)
	LookupByKey(key strategy.Key) []*strategy.Strategy
}

// ToolRegistry is the subset of *toolregistry.Registry the Orchestrator's
// sub-phases need.
type ToolRegistry interface {
	Lookup(use string) (toolregistry.Adapter, bool)
}

// Orchestrator owns State for the lifetime of one RunResearch call and
// composes the four phase collaborators. It holds no per-request mutable
// state of its own between calls: every field here is either an immutable
// shared collaborator (registries, settings) or a stateless phase runner,
// matching spec §3's "Orchestrator exclusively owns each State" ownership
// rule — there is nothing else to own across calls.
type Orchestrator struct {
	strategies StrategyRegistry
	tools      ToolRegistry
	settings   settings.Settings

	tracer  telemetry.Tracer
	logger  telemetry.Logger
	metrics telemetry.Metrics
	clock   clock.Clock

	scoper    *scope.Selector
	filler    *fill.Resolver
	research  *research.Controller
	finalizer finalizer
}

// finalizer is the subset of *finalize.Synthesizer the Orchestrator calls,
// kept as an interface so tests can substitute a stub that exercises the
// quality-floor / malformed-JSON boundary behaviors without a real LLM
// adapter.
type finalizer interface {
	Run(ctx context.Context, s *strategy.Strategy, st *state.State) error
}

// New builds an Orchestrator from its shared collaborators. tracer/logger/
// metrics/clk may be nil and default to no-ops / the real wall clock.
func New(
	strategies StrategyRegistry,
	tools ToolRegistry,
	sett settings.Settings,
	tracer telemetry.Tracer,
	logger telemetry.Logger,
	metrics telemetry.Metrics,
	clk clock.Clock,
) *Orchestrator {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	stepExecutor := step.New(tools, tracer, logger, metrics, clk, sett.Limits.ForEachConcurrencyOrDefault())

	return &Orchestrator{
		strategies: strategies,
		tools:      tools,
		settings:   sett,
		tracer:     tracer,
		logger:     logger,
		metrics:    metrics,
		clock:      clk,
		scoper:     scope.New(strategies, tools, tracer, sett),
		filler:     fill.New(tools, tracer, sett, clk),
		research:   research.New(stepExecutor, tracer, sett.Limits),
		finalizer:  finalize.New(tools, tracer, sett),
	}
}

// WithFinalizer overrides the Finalize sub-phase, for tests that need to
// exercise Orchestrator-level control flow (best-effort Finalize, the
// no_evidence short-circuit) without driving a real llm_completion
// adapter through finalize's four sub-stages.
func (o *Orchestrator) WithFinalizer(f finalizer) *Orchestrator {
	o.finalizer = f
	return o
}

// RunResearch drives one State through scope->fill->research->finalize and
// returns the resulting briefing (spec §6). The returned error is reserved
// for conditions the caller cannot recover a ResearchResult from (context
// cancellation before any phase ran); every ordinary business failure is
// reported through ResearchResult.Status/Error instead, per spec §7's "no
// stack traces escape to callers".
func (o *Orchestrator) RunResearch(ctx context.Context, req ResearchRequest) (ResearchResult, error) {
	startedAt := o.clock.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_research")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return ResearchResult{}, err
	}

	if req.Topic == "" {
		return o.fail(orcherr.New(orcherr.KindInput, "orchestrator.request", "topic is required")), nil
	}

	st := state.New(req.Topic, req.Identity)

	strat, err := o.scoper.Run(ctx, scope.Request{Topic: req.Topic, StrategyHint: req.StrategyHint, DepthOverride: req.DepthOverride}, st)
	if err != nil {
		o.recordFatal(st, "scope", err)
		return o.result(st, startedAt), nil
	}

	if err := o.filler.Run(ctx, strat, st); err != nil {
		o.recordFatal(st, "fill", err)
		return o.result(st, startedAt), nil
	}

	researchErr := o.research.Run(ctx, strat, st)
	if researchErr != nil {
		o.recordFatal(st, "research", researchErr)
		// Best-effort Finalize per spec §4.7: attempted even though
		// Research aborted, provided at least one Evidence record
		// survived (Fill already succeeded to reach this point).
		if len(st.Evidence) == 0 {
			return o.result(st, startedAt), nil
		}
	}

	if len(st.Evidence) == 0 {
		o.recordFatal(st, "finalize", orcherr.New(orcherr.KindInput, "finalize.no_evidence", "no_evidence"))
		return o.result(st, startedAt), nil
	}

	if err := o.finalizer.Run(ctx, strat, st); err != nil {
		o.recordFatal(st, "finalize", err)
		return o.result(st, startedAt), nil
	}

	return o.result(st, startedAt), nil
}

// recordFatal appends the phase's fatal error to State and transitions to
// FAILED, unless State is already terminal (best-effort Finalize that
// itself fails after a research-phase abort re-enters here once).
func (o *Orchestrator) recordFatal(st *state.State, phase string, err error) {
	st.AppendError(state.ErrorRecord{
		Phase:   st.CurrentPhase(),
		Step:    phase,
		Kind:    orcherr.KindOf(err),
		Message: err.Error(),
		At:      o.clock.Now(),
	})
	if st.CurrentPhase() != state.PhaseFinalized && st.CurrentPhase() != state.PhaseFailed {
		_ = st.Transition(state.PhaseFailed)
	}
	o.logger.Warn(context.Background(), "phase failed", "phase", phase, "reason", err.Error())
}

// fail builds a ResearchResult for a request-level error that never
// produced a State (e.g. a blank topic).
func (o *Orchestrator) fail(err error) ResearchResult {
	msg := err.Error()
	if oe := orcherr.As(err); oe != nil {
		msg = oe.Message
	}
	return ResearchResult{Status: StatusFailed, Error: msg}
}

// result assembles the final ResearchResult from st.
func (o *Orchestrator) result(st *state.State, startedAt time.Time) ResearchResult {
	finishedAt := o.clock.Now()
	if st.CurrentPhase() != state.PhaseFinalized {
		return ResearchResult{Status: StatusFailed, Error: failureReason(st)}
	}

	sections := make([]Section, 0, len(st.Sections))
	for _, s := range st.Sections {
		sections = append(sections, Section{Heading: s.Heading, Body: s.Body})
	}
	citations := make([]Citation, 0, len(st.Citations))
	for _, c := range st.Citations {
		citations = append(citations, Citation{Title: c.Title, URL: c.URL, Snippet: c.Snippet, PublishedAt: c.PublishedAt})
	}

	skipped := 0
	for _, outcome := range st.Outcomes {
		if outcome.Skipped {
			skipped++
		}
	}

	return ResearchResult{
		Status: StatusCompleted,
		Briefing: &Briefing{
			ResearchTopic: st.UserRequest,
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			StrategySlug:  st.StrategySlug,
			Sections:      sections,
			Citations:     citations,
			Metadata: Metadata{
				EvidenceCount: len(st.Evidence),
				StrategySlug:  st.StrategySlug,
				ErrorCount:    len(st.Errors),
				SkippedCount:  skipped,
				EvictedCount:  st.EvictedCount,
			},
		},
	}
}

// failureReason renders a short human-readable reason from the last
// recorded error, defaulting to "no_evidence" when State never accumulated
// any Evidence (spec §8's boundary behavior: "Empty evidence -> FAILED
// with reason no_evidence").
func failureReason(st *state.State) string {
	if len(st.Evidence) == 0 {
		return "no_evidence"
	}
	if n := len(st.Errors); n > 0 {
		return st.Errors[n-1].Message
	}
	return "unknown failure"
}
