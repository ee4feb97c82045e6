package remote

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig defines retry behavior. Immutable after construction.
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	BaseDelay:       1 * time.Second,
	MaxDelay:        30 * time.Second,
	ExponentialBase: 2.0,
	Jitter:          true,
}

// Executor retries a fallible operation with exponential backoff, bounded by
// MaxAttempts. Backoff sleeps are cooperative: they suspend on the context
// and never block unrelated work.
type Executor struct {
	cfg RetryConfig

	// sleep is replaceable in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(cfg RetryConfig) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ExponentialBase <= 1 {
		cfg.ExponentialBase = DefaultRetryConfig.ExponentialBase
	}
	return &Executor{cfg: cfg, sleep: sleepCtx}
}

// Do executes op, retrying transient failures with backoff. Success on any
// attempt short-circuits. Fatal errors (per ClassifyError) and cancellation
// abort the loop immediately; cancellation propagates as ctx.Err(), distinct
// from RetryError. After MaxAttempts failed attempts a *RetryError carrying
// the last cause is returned.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.delayFor(attempt)); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ClassifyError(err) == ActionFatal {
			return err
		}
	}

	return &RetryError{Attempts: e.cfg.MaxAttempts, Err: lastErr}
}

// delayFor computes the backoff before the given attempt (attempt >= 2).
func (e *Executor) delayFor(attempt int) time.Duration {
	delay := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.ExponentialBase, float64(attempt-2))
	if delay > float64(e.cfg.MaxDelay) {
		delay = float64(e.cfg.MaxDelay)
	}
	if e.cfg.Jitter {
		// Uniform in [0.5*delay, 1.5*delay) to avoid synchronized retry storms.
		delay = delay*0.5 + rand.Float64()*delay
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
