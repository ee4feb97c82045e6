package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call before
// the underlying operation is invoked. It is a fail-fast signal, never
// retried within the same call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RetryError is returned when the retry budget for one operation is
// exhausted. It carries the last underlying cause and the attempt count.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// ProtocolError indicates a permanent contract mismatch with the remote
// service (malformed response, unknown resource). Never retried.
type ProtocolError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: protocol error (http %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: protocol error: %s", e.Op, e.Message)
}

// StatusError is produced by the HTTP transport for non-2xx responses.
// Classification decides whether it is transient or permanent.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a given error. Permanent contract
// violations and not-found responses are fatal; network failures, timeouts
// and 5xx-equivalents are retried.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	// Cancellation is handled by the executor, never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ActionFatal
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return ActionFatal
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound,
			statusErr.StatusCode == http.StatusBadRequest,
			statusErr.StatusCode == http.StatusUnprocessableEntity:
			return ActionFatal
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return ActionRetry
		case statusErr.StatusCode >= 500:
			return ActionRetry
		}
	}

	sLower := strings.ToLower(err.Error())
	if strings.Contains(sLower, "not found") ||
		strings.Contains(sLower, "malformed") ||
		strings.Contains(sLower, "invalid request") {
		return ActionFatal
	}

	// Default to Retry (network, timeout, 5xx, etc)
	return ActionRetry
}
