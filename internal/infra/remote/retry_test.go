package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noSleepExecutor returns an executor that records requested delays instead
// of sleeping.
func noSleepExecutor(cfg RetryConfig) (*Executor, *[]time.Duration) {
	e := NewExecutor(cfg)
	delays := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return e, delays
}

func TestExecutor_SucceedsAfterTransientFailures(t *testing.T) {
	e, _ := noSleepExecutor(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2})

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecutor_ExhaustionReturnsRetryError(t *testing.T) {
	e, _ := noSleepExecutor(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2})

	cause := errors.New("timeout")
	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *RetryError, got %v", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("expected 3 attempts reported, got %d", retryErr.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Error("expected RetryError to wrap the last cause")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestExecutor_BackoffDelaysBounded(t *testing.T) {
	// max_attempts=3, base=1s, exp=2, max=30s: pre-jitter delays before
	// attempts 2 and 3 are 1s and 2s, bounded by 2 and 4.
	e, delays := noSleepExecutor(RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBase: 2})

	_ = e.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("500 Internal Server Error")
	})

	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*delays))
	}
	if (*delays)[0] != time.Second {
		t.Errorf("expected first delay 1s, got %v", (*delays)[0])
	}
	if (*delays)[1] != 2*time.Second {
		t.Errorf("expected second delay 2s, got %v", (*delays)[1])
	}
}

func TestExecutor_MaxDelayCap(t *testing.T) {
	e, delays := noSleepExecutor(RetryConfig{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 4 * time.Second, ExponentialBase: 2})

	_ = e.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("timeout")
	})

	for i, d := range *delays {
		if d > 4*time.Second {
			t.Errorf("delay %d exceeds max: %v", i, d)
		}
	}
}

func TestExecutor_JitterWithinBounds(t *testing.T) {
	e, delays := noSleepExecutor(RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBase: 2, Jitter: true})

	for i := 0; i < 20; i++ {
		*delays = (*delays)[:0]
		_ = e.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("timeout")
		})
		if len(*delays) != 1 {
			t.Fatalf("expected 1 sleep, got %d", len(*delays))
		}
		d := (*delays)[0]
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("jittered delay out of [0.5s, 1.5s]: %v", d)
		}
	}
}

func TestExecutor_FatalErrorNotRetried(t *testing.T) {
	e, _ := noSleepExecutor(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2})

	calls := 0
	fatal := &ProtocolError{Op: "fetch_experiment", Message: "malformed response"}
	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error returned as-is, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt for fatal error, got %d", calls)
	}
}

func TestExecutor_CancellationPropagates(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := e.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		t.Error("cancellation must not surface as RetryError")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{&StatusError{StatusCode: 500, Body: "internal"}, ActionRetry},
		{&StatusError{StatusCode: 429, Body: "too many requests"}, ActionRetry},
		{&StatusError{StatusCode: 404, Body: "no such experiment"}, ActionFatal},
		{&StatusError{StatusCode: 400, Body: "bad cursor"}, ActionFatal},
		{&ProtocolError{Op: "list_datasets", Message: "unexpected shape"}, ActionFatal},
		{ErrCircuitOpen, ActionFatal},
		{context.Canceled, ActionFatal},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}
