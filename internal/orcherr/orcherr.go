// Package orcherr defines the error taxonomy shared by every phase of the
// research orchestrator. Every error that the Step Executor, Variable
// Resolver, or Finalize Synthesizer branches on (retry vs. abort,
// continue vs. fatal) is an *Error carrying one of the Kinds below rather
// than a bare string, mirroring the way the teacher keeps
// model.ProviderError typed and errors.As-friendly instead of formatting
// messages ad hoc.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and propagation decisions (spec §7).
type Kind string

const (
	// KindConfig marks a malformed strategy, missing required variable, or
	// other static misconfiguration. Never retried.
	KindConfig Kind = "config"
	// KindInput marks an invalid inbound request. Never retried.
	KindInput Kind = "input"
	// KindTransient marks a network blip or retryable 5xx. Retried per the
	// step's backoff policy.
	KindTransient Kind = "transient"
	// KindRateLimited marks a provider throttling signal. Retried per the
	// step's backoff policy.
	KindRateLimited Kind = "rate_limited"
	// KindTimeout marks a deadline exceeded on an adapter call. Retried per
	// the step's backoff policy.
	KindTimeout Kind = "timeout"
	// KindPermanent marks a non-retryable adapter failure (4xx other than
	// 429, adapter misuse). Never retried.
	KindPermanent Kind = "permanent"
	// KindInternal marks an unexpected failure in core logic. Never
	// retried; always terminates the current phase as fatal.
	KindInternal Kind = "internal"
)

// Retryable reports whether the retry policy in internal/step should ever
// attempt this kind again after a failed call.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the structured error type threaded through State.errors,
// adapter results, and phase returns.
type Error struct {
	Kind    Kind
	Op      string // operation/step name where the error originated
	Message string
	Cause   error
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing cause.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// As extracts an *Error from err, returning nil if err does not carry one.
func As(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return nil
}

// KindOf returns the Kind of err, defaulting to KindInternal when err does
// not carry a structured Kind (an unclassified failure should never be
// silently retried).
func KindOf(err error) Kind {
	if oe := As(err); oe != nil {
		return oe.Kind
	}
	return KindInternal
}
