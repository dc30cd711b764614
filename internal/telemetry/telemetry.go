// Package telemetry abstracts structured logging, metrics, and hierarchical
// tracing so the orchestrator core never talks to an observability backend
// directly. Phases and steps emit spans through the Tracer interface;
// production code wires these to OpenTelemetry and Clue, tests wire them to
// no-ops.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the orchestrator.
// Implementations typically delegate to Clue but the interface stays small
// so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime
// instrumentation (evidence counts, retry counts, phase durations).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so core code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
//
//	ctx, span := tracer.Start(ctx, "research.step", trace.WithSpanKind(trace.SpanKindInternal))
//	defer span.End()
//	span.SetStatus(codes.Ok, "completed")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)

	// RecordEvidence stamps the Evidence/Citation-shaped counters the
	// Research and Finalize phase controllers report after each pass:
	// count is how many Evidence/Citation records the operation produced,
	// tool is the SourceTool the batch came from ("" for a
	// cross-tool/citation total). Phase spans use this instead of a raw
	// IncCounter so the count rides along with the same span the error
	// taxonomy attaches to.
	RecordEvidence(count int, tool string)
}

// SpanAttrs is a key-value bag stamped onto a span at start time. Kept as a
// plain map (rather than a typed builder) because the attribute set varies
// by span kind (trace/phase/step/generation) and callers already have the
// values as a map from State/Step.
type SpanAttrs map[string]any
