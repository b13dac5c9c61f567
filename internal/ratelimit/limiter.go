// Package ratelimit paces calls to the task service so that several accounts
// processed back to back do not burst the remote API.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every API client of a run.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
	waits   atomic.Int64
}

// NewRateLimiter allows rps requests per second with a burst of rps.
// rps <= 0 disables pacing.
func NewRateLimiter(rps int) *RateLimiter {
	if rps < 0 {
		rps = 0
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), max(rps, 1)),
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	r.waits.Add(1)
	if limit == 0 {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// SetRate changes the pace for subsequent waits.
func (r *RateLimiter) SetRate(rps int) {
	if rps < 0 {
		rps = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(rps))
	r.limiter.SetBurst(max(rps, 1))
}

// Rate returns the current requests-per-second limit.
func (r *RateLimiter) Rate() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.limiter.Limit())
}

// Waits returns how many requests have passed through the limiter.
func (r *RateLimiter) Waits() int64 {
	if r == nil {
		return 0
	}
	return r.waits.Load()
}
