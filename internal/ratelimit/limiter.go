// Package ratelimit implements the token bucket gate shared by all workers
// in one batch invocation.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/webharvest/batchfetch/internal/metrics"
)

// Limiter gates fetch attempts at a fixed requests-per-second budget.
// A nil or disabled Limiter admits callers immediately.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing perSecond requests per second with an equal
// burst. perSecond <= 0 disables limiting.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Enabled reports whether the limiter actually gates callers.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until a token is available, respecting the context. Tokens are
// granted in arrival order; Wait never rejects a caller outright.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(delay)
	}
	return nil
}
