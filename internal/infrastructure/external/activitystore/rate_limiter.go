package activitystore

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig shapes the request budget against the activity service.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstSize is how many requests may fire back to back from a full bucket.
	BurstSize int

	// MinInterval is the floor between consecutive requests, tokens or not.
	MinInterval time.Duration

	// WaitTimeout bounds how long Allow blocks waiting for budget.
	WaitTimeout time.Duration

	// RetryAfter is the pause applied when the service reports 429 without
	// a Retry-After header of its own.
	RetryAfter time.Duration
}

// DefaultRateLimiterConfig suits the aggregation sweeps: they read in bulk,
// so sustained rate matters more than burst headroom.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		MinInterval:       200 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
		RetryAfter:        60 * time.Second,
	}
}

// RateLimitError is returned when the request budget is exhausted, locally or
// because the service itself answered 429.
type RateLimitError struct {
	// RetryAfter is the suggested wait before the next attempt.
	RetryAfter time.Duration

	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// RateLimiter is a token bucket in front of the activity service. A full
// bucket absorbs a burst of aggregation reads; after that, requests drain at
// the configured sustained rate. When the service pushes back with 429 the
// bucket empties and refills slower, so repeated hits back the engine off
// harder each time.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	minInterval time.Duration
	lastRequest time.Time
	waitTimeout time.Duration
	retryAfter  time.Duration // default cool-down for a 429 without Retry-After
	coolUntil   time.Time
	penalties   int // consecutive waits, drives the backoff multiplier
}

// NewRateLimiter returns a limiter with a full bucket, ready for an
// immediate first request.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  now,
		minInterval: config.MinInterval,
		lastRequest: now.Add(-config.MinInterval),
		waitTimeout: config.WaitTimeout,
		retryAfter:  config.RetryAfter,
	}
}

// Allow blocks until a token is available, the context is done, or the wait
// timeout passes. A nil return means the request may proceed now.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		if time.Now().Add(wait).After(deadline) {
			return &RateLimitError{
				RetryAfter: wait,
				Message:    "rate limit exceeded, retry after " + wait.String(),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire takes a token if one is available. On refusal the returned
// duration says how long to wait before asking again.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if now := time.Now(); now.Before(rl.coolUntil) {
		return rl.coolUntil.Sub(now), false
	}

	if since := time.Since(rl.lastRequest); since < rl.minInterval {
		return rl.minInterval - since, false
	}

	if rl.tokens < 1.0 {
		wait := time.Duration((1.0 - rl.tokens) / rl.refillRate * float64(time.Second))
		if rl.penalties > 0 {
			// Doubles per consecutive wait, capped at 32x.
			wait *= time.Duration(1 << uint(min(rl.penalties, 5)))
		}
		rl.penalties++
		return wait, false
	}

	rl.tokens--
	rl.lastRequest = time.Now()
	rl.penalties = 0
	return 0, true
}

// refill credits tokens for the time elapsed. Caller holds the lock.
func (rl *RateLimiter) refill() {
	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens += elapsed * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}
}

// RecordRateLimitHit reacts to a 429 from the service: the bucket empties,
// the refill rate drops, and the next wait starts from now.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	if retryAfter <= 0 {
		retryAfter = rl.retryAfter
	}
	now := time.Now()
	rl.coolUntil = now.Add(retryAfter)
	rl.refillRate *= 0.8
	rl.lastRequest = now
	rl.penalties++
}

// Reset restores a full bucket and clears any cool-down. Used after a quiet
// period or a config change.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = rl.maxTokens
	rl.lastRefill = now
	rl.lastRequest = now.Add(-rl.minInterval)
	rl.coolUntil = time.Time{}
	rl.penalties = 0
}

// RateLimiterStatus is a point-in-time snapshot for diagnostics.
type RateLimiterStatus struct {
	AvailableTokens  float64
	MaxTokens        float64
	RefillRate       float64
	LastRefill       time.Time
	LastRequest      time.Time
	ConsecutiveWaits int
}

// Status reports the limiter's current budget.
func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()

	return RateLimiterStatus{
		AvailableTokens:  rl.tokens,
		MaxTokens:        rl.maxTokens,
		RefillRate:       rl.refillRate,
		LastRefill:       rl.lastRefill,
		LastRequest:      rl.lastRequest,
		ConsecutiveWaits: rl.penalties,
	}
}
