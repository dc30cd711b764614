package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	errs []error
	i    int
}

func (c *scriptedCompleter) Complete(context.Context, Request) (Response, error) {
	var err error
	if c.i < len(c.errs) {
		err = c.errs[c.i]
	}
	c.i++
	return Response{Text: "ok"}, err
}

func TestWrapPassesThroughOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60_000, 200_000)
	wrapped := limiter.Wrap(&scriptedCompleter{})

	resp, err := wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
}

func TestWrapHalvesBudgetOnProviderRateLimit(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60_000, 200_000)
	wrapped := limiter.Wrap(&scriptedCompleter{errs: []error{ErrRateLimited}})

	_, err := wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.InDelta(t, 30_000, limiter.currentTPM, 1)
}

func TestWrapNeverBacksOffBelowMinTPM(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1_000, 2_000)
	wrapped := limiter.Wrap(&scriptedCompleter{errs: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited, ErrRateLimited, ErrRateLimited}})

	for i := 0; i < 5; i++ {
		_, _ = wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	}
	require.GreaterOrEqual(t, limiter.currentTPM, limiter.minTPM)
}

func TestProbeGrowsBudgetBackTowardMaxOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60_000, 200_000)
	limiter.backoff() // currentTPM now 30_000
	before := limiter.currentTPM

	limiter.probe()
	require.Greater(t, limiter.currentTPM, before)
}

func TestEstimateTokensHasAFixedFloorForEmptyRequests(t *testing.T) {
	require.Equal(t, 500, estimateTokens(Request{}))
}
