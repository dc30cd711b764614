package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mberto10/researchctl/internal/orcherr"
)

type (
	// NoopLogger is a no-op implementation of Logger that discards all log messages.
	NoopLogger struct{}

	// NoopMetrics is a no-op implementation of Metrics that discards all metrics.
	NoopMetrics struct{}

	// NoopTracer is a no-op implementation of Tracer that creates no-op spans.
	NoopTracer struct{}

	// noopSpan discards every write a real exporter would ship off-process,
	// but keeps the domain facts callers stamp on it in memory: the
	// orcherr.Kind of the last recorded error, the event names added via
	// AddEvent, the status code, and per-tool RecordEvidence counts. Tests
	// built on NewNoopTracer can assert these without standing up a real
	// span backend.
	noopSpan struct {
		mu          sync.Mutex
		status      codes.Code
		lastKind    orcherr.Kind
		events      []string
		evidenceByTool map[string]int
	}
)

// NewNoopLogger constructs a Logger that discards all log messages.
// Use this for testing or when logging is not required.
func NewNoopLogger() Logger {
	return NoopLogger{}
}

// NewNoopMetrics constructs a Metrics recorder that discards all metrics.
// Use this for testing or when metrics are not required.
func NewNoopMetrics() Metrics {
	return NoopMetrics{}
}

// NewNoopTracer constructs a Tracer that creates no-op spans.
// Use this for testing or when tracing is not required.
func NewNoopTracer() Tracer {
	return NoopTracer{}
}

// Debug discards the log message.
func (NoopLogger) Debug(context.Context, string, ...any) {}

// Info discards the log message.
func (NoopLogger) Info(context.Context, string, ...any) {}

// Warn discards the log message.
func (NoopLogger) Warn(context.Context, string, ...any) {}

// Error discards the log message.
func (NoopLogger) Error(context.Context, string, ...any) {}

// IncCounter discards the counter metric.
func (NoopMetrics) IncCounter(string, float64, ...string) {}

// RecordTimer discards the timer metric.
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}

// RecordGauge discards the gauge metric.
func (NoopMetrics) RecordGauge(string, float64, ...string) {}

// Start returns a fresh no-op span without modifying the context.
func (NoopTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, &noopSpan{}
}

// Span returns a fresh no-op span.
func (NoopTracer) Span(context.Context) Span {
	return &noopSpan{}
}

// End is a no-op; nothing is flushed anywhere.
func (s *noopSpan) End(...trace.SpanEndOption) {}

// AddEvent records name in-memory so tests can assert a span received the
// events it's expected to (e.g. the Batch Runner's "batch.dispatch")
// without a real span backend.
func (s *noopSpan) AddEvent(name string, attrs ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

// SetStatus records the status code in-memory; nothing is exported.
func (s *noopSpan) SetStatus(code codes.Code, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// RecordError classifies err by orcherr.Kind and remembers it in-memory
// instead of discarding it outright: the Step Executor and phase
// controllers record every failure through this path, and a test double
// that threw the classification away would be unable to assert "this step
// failed with a retryable Kind" the way the orchestrator itself branches.
func (s *noopSpan) RecordError(err error, opts ...trace.EventOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKind = orcherr.KindOf(err)
}

// LastErrorKind reports the orcherr.Kind of the most recently recorded
// error, or the zero Kind if RecordError was never called.
func (s *noopSpan) LastErrorKind() orcherr.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKind
}

// RecordEvidence accumulates count under tool in-memory so a test can
// assert "the research phase reported N evidence records from websearch"
// without a real metrics backend.
func (s *noopSpan) RecordEvidence(count int, tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evidenceByTool == nil {
		s.evidenceByTool = make(map[string]int)
	}
	s.evidenceByTool[tool] += count
}

// EvidenceRecorded returns the accumulated count reported for tool.
func (s *noopSpan) EvidenceRecorded(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evidenceByTool[tool]
}

// Events returns the names passed to AddEvent, in call order.
func (s *noopSpan) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// Status returns the code passed to SetStatus, or codes.Unset if it was
// never called.
func (s *noopSpan) Status() codes.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
