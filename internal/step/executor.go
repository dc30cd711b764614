// Package step executes one Strategy Step against the Tool Adapter
// Registry: resolving `use`, expanding `{{...}}` templates against the
// current State scope, evaluating the optional `when` guard, fanning a
// `for_each` step out across its items, and applying the step's on_error
// policy (spec §4.4). Concurrency is modeled on the teacher's use of
// golang.org/x/sync/errgroup+semaphore for bounded fan-out (seen throughout
// runtime/agent's batch dispatch), the one concurrency idiom this module
// reuses for both for_each and the Batch Runner.
package step

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mberto10/researchctl/internal/clock"
	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/exprval"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
	"github.com/mberto10/researchctl/internal/toolregistry/paramschema"
)

// Registry is the subset of *toolregistry.Registry the executor needs,
// kept as an interface so tests can supply a stub registry.
type Registry interface {
	Lookup(use string) (toolregistry.Adapter, bool)
}

// Executor runs Strategy Steps against a Registry.
type Executor struct {
	registry    Registry
	tracer      telemetry.Tracer
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	clock       clock.Clock
	concurrency int
}

// New builds an Executor. concurrency bounds for_each fan-out (spec §5);
// non-positive defaults to 4. Tests pass a clock.Fixed to get deterministic
// ErrorRecord.At timestamps.
func New(registry Registry, tracer telemetry.Tracer, logger telemetry.Logger, metrics telemetry.Metrics, clk clock.Clock, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 4
	}
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
	return &Executor{registry: registry, tracer: tracer, logger: logger, metrics: metrics, clock: clk, concurrency: concurrency}
}

// callResult is one adapter invocation's outcome, kept positional so
// for_each can reassemble concurrent dispatches in input order before
// ever touching State (spec §5: "for_each element side-effects are
// applied in list order even if adapter calls are dispatched
// concurrently").
type callResult struct {
	results []evidence.Evidence
	usage   *toolregistry.Usage
	err     error
}

// Run executes one step against st, returning the step's outcome. It never
// returns an error for a step whose on_error policy absorbed the failure
// (continue); it returns an error only for abort and for exhausted retries
// under an abort fallthrough, so callers (the phase controllers) can tell
// "the strategy run must fail" apart from "this step was skipped".
func (e *Executor) Run(ctx context.Context, s *strategy.Step, st *state.State) error {
	ctx, span := e.tracer.Start(ctx, "step."+s.Name)
	defer span.End()

	scope := st.Scope()
	ok, err := evalWhen(s.When, scope)
	if err != nil {
		return e.handleError(s, st, fmt.Errorf("step %q: when: %w", s.Name, orcherr.Wrap(orcherr.KindConfig, "step.when", err)))
	}
	if !ok {
		st.AppendOutcome(state.StepOutcome{Step: s.Name, Skipped: true, Reason: "when_false"})
		return nil
	}

	adapter, found := e.registry.Lookup(s.Use)
	if !found {
		return e.handleError(s, st, orcherr.New(orcherr.KindConfig, "step.lookup", fmt.Sprintf("step %q: no adapter for %q", s.Name, s.Use)))
	}

	if s.ForEach == "" {
		res := e.call(ctx, s, adapter, scope)
		return e.commit(s, st, []callResult{res})
	}
	return e.runForEach(ctx, s, st, adapter, scope)
}

func (e *Executor) runForEach(ctx context.Context, s *strategy.Step, st *state.State, adapter toolregistry.Adapter, scope *exprval.Scope) error {
	items, err := exprval.Resolve(scope, s.ForEach)
	if err != nil {
		return e.handleError(s, st, fmt.Errorf("step %q: for_each: %w", s.Name, orcherr.Wrap(orcherr.KindConfig, "step.for_each", err)))
	}
	list := items.AsList()
	if len(list) == 0 {
		st.AppendOutcome(state.StepOutcome{Step: s.Name, Skipped: true, Reason: "for_each_empty"})
		return nil
	}

	results := make([]callResult, len(list))
	sem := semaphore.NewWeighted(int64(e.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	loopVar := s.LoopVar()

	for i, item := range list {
		i, item := i, item
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			itemScope := scope.Child(map[string]exprval.Value{loopVar: item})
			results[i] = e.call(gctx, s, adapter, itemScope)
			return nil
		})
	}
	// g.Wait's error is always nil here — call() never returns a Go error,
	// it reports failure inside callResult.err — so this only surfaces
	// context cancellation/semaphore acquisition failures.
	if err := g.Wait(); err != nil {
		return e.handleError(s, st, orcherr.Wrap(orcherr.KindTransient, "step.for_each", err))
	}
	return e.commit(s, st, results)
}

// defaultSearchTimeout and defaultLLMTimeout are the adapter-kind defaults
// from spec §4.4, used when a step sets no timeout_seconds of its own.
const (
	defaultSearchTimeout = 30 * time.Second
	defaultLLMTimeout    = 90 * time.Second
)

// stepTimeout resolves the per-call timeout for s: its own TimeoutSeconds
// when set, otherwise the adapter-kind default (spec §4.4).
func stepTimeout(s *strategy.Step, adapter toolregistry.Adapter) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	for _, c := range adapter.Capabilities() {
		if c == toolregistry.CapabilityLLMCompletion {
			return defaultLLMTimeout
		}
	}
	return defaultSearchTimeout
}

// call expands params, applies the retry policy, and invokes the adapter.
// It performs no State mutation so for_each can order results before
// committing them.
func (e *Executor) call(ctx context.Context, s *strategy.Step, adapter toolregistry.Adapter, scope *exprval.Scope) callResult {
	params, err := exprval.ExpandParams(s.Params, scope)
	if err != nil {
		return callResult{err: fmt.Errorf("step %q: params: %w", s.Name, orcherr.Wrap(orcherr.KindConfig, "step.params", err))}
	}
	if err := paramschema.Validate(adapter.ParamsSchema(), params); err != nil {
		return callResult{err: fmt.Errorf("step %q: params schema: %w", s.Name, err)}
	}

	timeout := stepTimeout(s, adapter)
	cfg := DefaultRetryConfig(s.EffectiveRetryMax())
	var results []evidence.Evidence
	var usage *toolregistry.Usage
	attempts := 0
	callErr := doWithRetry(ctx, cfg, func(ctx context.Context) error {
		attempts++
		// Every attempt gets its own deadline derived from the phase
		// deadline minus elapsed time: ctx already carries the phase
		// deadline, so WithTimeout here yields whichever is sooner
		// (spec §5).
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		r, u, err := adapter.Call(callCtx, params)
		if err != nil {
			return err
		}
		results, usage = r, u
		return nil
	})
	if callErr != nil {
		e.metrics.IncCounter("step.call_failed", 1, "step", s.Name, "use", s.Use)
		return callResult{err: &stepCallError{step: s.Name, use: s.Use, attempts: attempts, cause: callErr}}
	}
	return callResult{results: results, usage: usage}
}

// commit applies results to State in order: appends Evidence, accumulates
// save_as, records usage metrics, and handles the first error encountered
// per the step's on_error policy (spec §4.4).
func (e *Executor) commit(s *strategy.Step, st *state.State, results []callResult) error {
	var allEvidence []evidence.Evidence
	for _, r := range results {
		if r.err != nil {
			return e.handleError(s, st, r.err)
		}
		if r.usage != nil {
			e.metrics.IncCounter("step.tokens", float64(r.usage.TotalTokens), "step", s.Name)
		}
		allEvidence = append(allEvidence, r.results...)
	}
	st.AppendEvidence(allEvidence...)
	if s.SaveAs != "" {
		st.SetVar(s.SaveAs, exprval.FromNative(evidenceToNative(allEvidence)))
	}
	st.AppendOutcome(state.StepOutcome{Step: s.Name})
	return nil
}

// handleError applies the step's on_error policy (spec §4.4): abort
// propagates the error to the caller, continue records it and returns nil
// so the strategy run proceeds, retry has already been exhausted by call's
// doWithRetry invocation by the time this runs and so degrades to continue
// semantics rather than aborting the phase.
func (e *Executor) handleError(s *strategy.Step, st *state.State, err error) error {
	st.AppendError(state.ErrorRecord{
		Step:    s.Name,
		Kind:    orcherr.KindOf(err),
		Message: err.Error(),
		At:      e.clock.Now(),
	})
	switch s.OnError {
	case strategy.OnErrorContinue, strategy.OnErrorRetry:
		st.AppendOutcome(state.StepOutcome{Step: s.Name, Failed: true, Reason: string(s.OnError)})
		return nil
	default:
		return err
	}
}

type stepCallError struct {
	step     string
	use      string
	attempts int
	cause    error
}

func (e *stepCallError) Error() string {
	return fmt.Sprintf("step %q (%s): failed after %d attempt(s): %v", e.step, e.use, e.attempts, e.cause)
}

func (e *stepCallError) Unwrap() error { return e.cause }

func evalWhen(expr string, scope *exprval.Scope) (bool, error) {
	if expr == "" {
		return true, nil
	}
	return exprval.EvalWhen(expr, scope)
}

func evidenceToNative(results []evidence.Evidence) []any {
	out := make([]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{
			"url":         r.URL,
			"title":       r.Title,
			"snippet":     r.Snippet,
			"source_tool": r.SourceTool,
		})
	}
	return out
}
