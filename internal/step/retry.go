package step

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mberto10/researchctl/internal/orcherr"
)

// RetryConfig configures exponential backoff with jitter, adapted from
// runtime/a2a/retry/retry.go's Config/calculateBackoff. Retryability here
// is decided by orcherr.Kind.Retryable() rather than a
// net.Error/HTTPStatusError type-switch, since every error the Step
// Executor sees has already been classified into the orcherr taxonomy by
// the adapter that produced it (spec §4.4).
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig mirrors the teacher's DefaultConfig, with MaxAttempts
// overridden per-step from Step.EffectiveRetryMax (spec §4.4: base 500ms,
// factor 2, jitter +-25%, capped at 8s).
func DefaultRetryConfig(maxAttempts int) RetryConfig {
	if maxAttempts <= 0 {
		maxAttempts = 1
	} else {
		maxAttempts++ // retry_max counts retries, not attempts
	}
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.25,
	}
}

// ExhaustedError is returned when every retry attempt failed.
type ExhaustedError struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("step: retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

// doWithRetry executes fn, retrying while orcherr.KindOf(err).Retryable()
// holds and attempts remain, backing off exponentially with jitter between
// tries (spec §4.4: "retry with exponential backoff and jitter, bounded by
// retry_max").
func doWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !orcherr.KindOf(err).Retryable() {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return &ExhaustedError{
		Attempts:      cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		jitter := backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
		backoff += jitter
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
