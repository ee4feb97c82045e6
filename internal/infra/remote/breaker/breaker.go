// Package breaker implements a circuit breaker guarding calls to the remote
// experimentation service.
//
// The breaker is pure bookkeeping: it performs no I/O and raises no errors.
// Callers must check Allow() immediately before every attempt and report the
// outcome with exactly one RecordSuccess or RecordFailure call.
package breaker

import (
	"sync"
	"time"
)

// State represents the health state of the guarded dependency.
type State int

const (
	StateClosed   State = iota // Calls allowed, dependency healthy
	StateOpen                  // Calls rejected until the timeout elapses
	StateHalfOpen              // Probing: calls allowed, watching outcomes
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls state transition thresholds.
type Config struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Consecutive successes in half-open before closing
	Timeout          time.Duration // Time in open before probing half-open
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          60 * time.Second,
}

// Breaker tracks the health of one remote dependency. One instance is shared
// by all concurrent callers against that dependency; a single mutex guards
// all state transitions.
type Breaker struct {
	mu sync.Mutex

	cfg       Config
	state     State
	failures  int       // consecutive failures in closed
	successes int       // consecutive successes in half-open
	openedAt  time.Time // when the breaker last entered open

	now func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return &Breaker{
		cfg: cfg,
		now: time.Now,
	}
}

// Allow reports whether a call may proceed. It is side-effecting: when the
// breaker is open and the timeout has elapsed, it transitions to half-open
// and allows that one call through as a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Timeout {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	}
	return false
}

// RecordSuccess reports a completed successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure reports a completed failed attempt.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		// Any failure while probing reopens and restarts the timer.
		b.state = StateOpen
		b.openedAt = b.now()
		b.successes = 0
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetClock overrides the time source. Test use only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
