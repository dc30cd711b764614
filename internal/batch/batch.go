// Package batch implements the Batch Runner (spec §4.8): on each scheduled
// run it lists every Subscription for a frequency bucket, fans out a bounded
// worker pool of RunResearch calls, and delivers each completed or failed
// result through a DeliverySink, isolating one subscription's failure from
// the rest of the batch. Concurrency reuses the Step Executor's
// golang.org/x/sync/errgroup + semaphore.Weighted idiom (spec §5: "one
// concurrency idiom, not two") rather than a second hand-rolled worker pool.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mberto10/researchctl/internal/clock"
	"github.com/mberto10/researchctl/internal/orchestrator"
	"github.com/mberto10/researchctl/internal/subscription"
	"github.com/mberto10/researchctl/internal/telemetry"
)

// DefaultWorkers bounds the number of concurrent RunResearch calls a single
// RunBatch invocation dispatches (spec §4.8: "default 4 workers").
const DefaultWorkers = 4

// Researcher is the subset of *orchestrator.Orchestrator the Batch Runner
// calls, kept as an interface so tests can substitute a deterministic stub.
type Researcher interface {
	RunResearch(ctx context.Context, req orchestrator.ResearchRequest) (orchestrator.ResearchResult, error)
}

// Runner drives one frequency bucket's worth of subscriptions through the
// Orchestrator and a DeliverySink. Subscription lookup is the caller's
// responsibility (spec §6: "subscription lookup and delivery are external
// collaborators") — Runner.store is consulted only when a caller wants the
// convenience ListAndRunBatch wrapper below.
type Runner struct {
	researcher Researcher
	store      subscription.SubscriptionStore
	sink       subscription.DeliverySink
	workers    int
	tracer     telemetry.Tracer
	logger     telemetry.Logger
	clock      clock.Clock
}

// New builds a Runner. store may be nil for callers that only ever use
// RunBatch with an explicit subscription list. workers <= 0 defaults to
// DefaultWorkers.
func New(
	researcher Researcher,
	store subscription.SubscriptionStore,
	sink subscription.DeliverySink,
	workers int,
	tracer telemetry.Tracer,
	logger telemetry.Logger,
	clk clock.Clock,
) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Runner{researcher: researcher, store: store, sink: sink, workers: workers, tracer: tracer, logger: logger, clock: clk}
}

// BatchResult is one subscription's outcome within a RunBatch call, for the
// caller's summary reporting (spec §6).
type BatchResult struct {
	SubscriptionID string
	Status         orchestrator.Status
	Error          string
}

// ListAndRunBatch looks subs up from r.store's frequency bucket, then runs
// RunBatch against them — the shape a cron-driven cmd/researchd daemon
// actually wants. Panics if r.store is nil; use RunBatch directly when the
// caller already has its own subscription list (spec §6's literal
// RunBatch(ctx, frequency, subs) contract).
func (r *Runner) ListAndRunBatch(ctx context.Context, frequency string) ([]BatchResult, error) {
	subs, err := r.store.ListByFrequency(ctx, frequency)
	if err != nil {
		return nil, err
	}
	return r.RunBatch(ctx, frequency, subs)
}

// RunBatch fans out a RunResearch call per element of subs, bounded by
// r.workers concurrent calls at a time (spec §4.8, §6:
// "RunBatch(ctx, frequency string, subs []Subscription) ([]BatchResult,
// error)"). One subscription's RunResearch error or delivery failure is
// recorded in its own BatchResult and never aborts the rest of the batch
// (spec §4.8: "per-subscription failure isolation"). frequency is carried
// through only for the trace span and logging; RunBatch does not otherwise
// filter subs by it.
func (r *Runner) RunBatch(ctx context.Context, frequency string, subs []subscription.Subscription) ([]BatchResult, error) {
	ctx, span := r.tracer.Start(ctx, "batch.run")
	span.AddEvent("batch.dispatch", "frequency", frequency, "subscription_count", len(subs))
	defer span.End()

	if len(subs) == 0 {
		return nil, nil
	}

	results := make([]BatchResult, len(subs))
	sem := semaphore.NewWeighted(int64(r.workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, sub := range subs {
		i, sub := i, sub
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = r.runOne(gctx, sub)
			return nil
		})
	}
	// g.Wait's error is always nil: runOne never returns a Go error, every
	// failure is captured inside its BatchResult, matching the Step
	// Executor's for_each reassembly discipline (internal/step).
	_ = g.Wait()

	return results, nil
}

// runOne drives a single subscription's RunResearch call and delivery,
// isolating any failure into the returned BatchResult rather than letting
// it propagate to the rest of the batch.
func (r *Runner) runOne(ctx context.Context, sub subscription.Subscription) BatchResult {
	req := orchestrator.ResearchRequest{
		Topic:         sub.Topic,
		StrategyHint:  sub.StrategyHint,
		DepthOverride: sub.DepthOverride,
		Callback:      sub.Callback,
	}

	res, err := r.researcher.RunResearch(ctx, req)
	if err != nil {
		r.logger.Warn(ctx, "batch: run_research returned an error", "subscription_id", sub.ID, "error", err.Error())
		r.deliver(ctx, sub, subscription.Delivery{Subscription: sub, Status: string(orchestrator.StatusFailed), Error: err.Error(), FinishedAt: r.clock.Now()})
		return BatchResult{SubscriptionID: sub.ID, Status: orchestrator.StatusFailed, Error: err.Error()}
	}

	d := subscription.Delivery{
		Subscription: sub,
		Status:       string(res.Status),
		Error:        res.Error,
		FinishedAt:   r.clock.Now(),
	}
	if res.Briefing != nil {
		d.Sections = sectionsOf(res.Briefing.Sections)
		d.Citations = citationsOf(res.Briefing.Citations)
	}
	r.deliver(ctx, sub, d)

	return BatchResult{SubscriptionID: sub.ID, Status: res.Status, Error: res.Error}
}

// deliver calls the sink, logging (not propagating) a delivery failure —
// delivery is best-effort once research itself has completed or failed, so
// a sink outage never turns a successful RunResearch into a batch error.
func (r *Runner) deliver(ctx context.Context, sub subscription.Subscription, d subscription.Delivery) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Deliver(ctx, d); err != nil {
		r.logger.Warn(ctx, "batch: delivery failed", "subscription_id", sub.ID, "error", err.Error())
	}
}

func sectionsOf(sections []orchestrator.Section) []subscription.Section {
	out := make([]subscription.Section, len(sections))
	for i, s := range sections {
		out[i] = subscription.Section{Heading: s.Heading, Body: s.Body}
	}
	return out
}

func citationsOf(citations []orchestrator.Citation) []subscription.Citation {
	out := make([]subscription.Citation, len(citations))
	for i, c := range citations {
		out[i] = subscription.Citation{Title: c.Title, URL: c.URL, Snippet: c.Snippet, PublishedAt: c.PublishedAt}
	}
	return out
}
