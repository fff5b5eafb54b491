package service

import (
	"sync"
	"time"
)

const staleBucketAge = 10 * time.Minute

// RateLimiter is an in-memory per-key token bucket limiter, used to throttle
// login and registration attempts by client address. Safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	rate      float64 // tokens added per second
	capacity  float64
	now       func() time.Time
	lastPrune time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithLimiterClock overrides the limiter's time source for tests.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter creates a limiter that allows bursts of up to capacity
// requests per key, refilling at rate tokens per second.
func NewRateLimiter(rate, capacity float64, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*tokenBucket),
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.lastPrune = rl.now()
	return rl
}

// Allow reports whether the given key may proceed. Each call consumes one token.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: rl.capacity, last: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(b.tokens+elapsed*rl.rate, rl.capacity)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pruneLocked drops buckets idle long enough to be full again. Runs at most
// once per stale age window so Allow stays cheap.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < staleBucketAge {
		return
	}
	cutoff := now.Add(-staleBucketAge)
	for key, b := range rl.buckets {
		if b.last.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
	rl.lastPrune = now
}
