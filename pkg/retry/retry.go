// Package retry runs an operation with exponential backoff. Every error is
// considered transient unless wrapped with Permanent, which fails fast; a
// validation error from the activity store should never burn three attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// PermanentError stops the retry loop immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Config controls attempt count and backoff shape. Delays grow from
// InitialDelay by Multiplier per attempt, capped at MaxDelay, with
// JitterFactor spreading them out (0 none, 1 full).
type Config struct {
	MaxAttempts  int // counts the first attempt too
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultConfig returns the profile most call sites want.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option adjusts a Config. New discards out-of-range values.
type Option func(*Config)

func WithMaxAttempts(n int) Option { return func(c *Config) { c.MaxAttempts = n } }

func WithInitialDelay(d time.Duration) Option { return func(c *Config) { c.InitialDelay = d } }

func WithMaxDelay(d time.Duration) Option { return func(c *Config) { c.MaxDelay = d } }

func WithMultiplier(m float64) Option { return func(c *Config) { c.Multiplier = m } }

func WithJitter(j float64) Option { return func(c *Config) { c.JitterFactor = j } }

// sanitize falls back to the default for any knob set out of range.
func (c *Config) sanitize() {
	def := DefaultConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = def.Multiplier
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		c.JitterFactor = def.JitterFactor
	}
}

// ActivityStoreOptions is the backoff profile for activity store reads.
// Conservative on purpose: the store rate-limits and a hot retry loop
// only digs the hole deeper.
func ActivityStoreOptions() []Option {
	return []Option{
		WithMaxAttempts(3),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(10 * time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
	}
}

// Retrier runs operations under one backoff profile.
type Retrier struct {
	config Config
}

// New builds a Retrier from DefaultConfig plus opts.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.sanitize()
	return &Retrier{config: config}
}

// Do runs operation until it succeeds, returns a Permanent error, the
// context ends, or MaxAttempts is spent. The Permanent marker is stripped
// from the returned error.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case attempt == r.config.MaxAttempts:
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.delay(attempt)):
		}
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.config.MaxDelay))
	if r.config.JitterFactor > 0 {
		d += d * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}
