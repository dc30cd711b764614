package llm

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by a Completer when the provider itself
// signals a rate limit (HTTP 429 or equivalent), distinct from the client
// side AdaptiveRateLimiter blocking a caller pre-emptively.
var ErrRateLimited = errors.New("llm: rate limited by provider")

// AdaptiveRateLimiter applies an AIMD-style token bucket in front of a
// Completer: it estimates the token cost of a request, blocks the caller
// until budget is available, then halves its tokens-per-minute budget on a
// provider rate-limit signal and grows it slowly on success. Adapted from
// features/model/middleware/ratelimit.go's AdaptiveRateLimiter, dropping
// its Pulse rmap cluster-coordination path — SPEC_FULL.md's orchestrator is
// a single process per run (spec §5), so there is no cluster budget to
// share.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter builds a limiter with an initial and max
// tokens-per-minute budget. Non-positive initialTPM defaults to 60000.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recovery := initialTPM * 0.05
	if recovery < 1 {
		recovery = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recovery,
	}
}

// Wrap returns a Completer that enforces the limiter in front of next.
func (l *AdaptiveRateLimiter) Wrap(next Completer) Completer {
	return &limitedCompleter{next: next, limiter: l}
}

type limitedCompleter struct {
	next    Completer
	limiter *AdaptiveRateLimiter
}

func (c *limitedCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return Response{}, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens is a cheap char-count heuristic, same ratio as the
// teacher's estimateTokens: ~1 token per 3 characters plus a fixed buffer
// for system prompt and provider framing overhead.
func estimateTokens(req Request) int {
	chars := len(req.System) + len(req.Prompt)
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
