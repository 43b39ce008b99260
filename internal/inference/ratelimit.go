package inference

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket limiting backend request rate. Even a local
// backend benefits from pacing: it keeps the engine responsive to the UI's
// own on-demand calls between scheduled enrichment tasks.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastRefill        time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastRefill:        time.Now(),
	}
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * float64(r.requestsPerMinute) / 60.0
	if max := float64(r.requestsPerMinute); r.tokens > max {
		r.tokens = max
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		needed := 1.0 - r.tokens
		refillPerSec := float64(r.requestsPerMinute) / 60.0
		wait := time.Duration(needed / refillPerSec * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// Consumed reports how many tokens have been taken over the limiter's lifetime.
func (r *RateLimiter) Consumed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalConsumed
}
