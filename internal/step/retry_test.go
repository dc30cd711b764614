package step

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/orcherr"
)

func TestDoWithRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), DefaultRetryConfig(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoWithRetryStopsImmediatelyOnNonRetryableKind(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), DefaultRetryConfig(3), func(context.Context) error {
		calls++
		return orcherr.New(orcherr.KindConfig, "op", "bad config")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoWithRetryExhaustsAfterRetryMaxRetries(t *testing.T) {
	const retryMax = 2
	calls := 0
	err := doWithRetry(context.Background(), DefaultRetryConfig(retryMax), func(context.Context) error {
		calls++
		return orcherr.New(orcherr.KindTransient, "op", "flaky")
	})
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, retryMax+1, calls) // retry_max retries plus the initial attempt
	require.Equal(t, retryMax+1, exhausted.Attempts)
}

func TestDoWithRetryRecoversOnLaterAttempt(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), DefaultRetryConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return orcherr.New(orcherr.KindTransient, "op", "flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

// TestCalculateBackoffNeverExceedsMaxBackoff verifies Property: for any
// attempt number and any configured jitter, calculateBackoff never returns a
// negative duration or one larger than cfg.MaxBackoff plus the jitter
// envelope, the same bounded-backoff property the teacher's retry package
// checks with prop.ForAll over generated attempt counts.
func TestCalculateBackoffNeverExceedsMaxBackoff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	cfg := DefaultRetryConfig(5)

	properties.Property("backoff stays within [0, MaxBackoff*(1+Jitter)]", prop.ForAll(
		func(attempt int) bool {
			backoff := calculateBackoff(cfg, attempt)
			upper := cfg.MaxBackoff + time.Duration(float64(cfg.MaxBackoff)*cfg.Jitter)
			return backoff >= 0 && backoff <= upper
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
