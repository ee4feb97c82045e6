// Package syncstate tracks per-dataset sync progress against the remote
// experimentation service.
//
// The state acts as a "bookmark" that remembers where the sync engine is in
// each dataset:
//   - Cursor: resume position for paginated result fetches
//   - Status: controls behavior (pending, in_progress, complete, failed)
//   - LastSyncedAt: freshness, drives skip-if-recent decisions
//
// Status Machine - only allows valid transitions:
//
//	PENDING → IN_PROGRESS → COMPLETE (valid)
//	PENDING → COMPLETE (invalid - a run must pass through in_progress)
//
// The cursor only advances AFTER a page is fully dispatched, and only moves
// backwards through an explicit Reset. Records survive process restarts via
// the storage.SyncStateRepository.
//
// # Package Structure
//
//   - state.go   - Status machine definitions and valid transitions
//   - manager.go - Manager implementation with monotonic cursor enforcement
//   - metrics.go - Performance metrics (items/sec, status history)
package syncstate

import (
	"errors"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// Status is an alias for domain.SyncStatus for internal use.
type Status = domain.SyncStatus

// Status constants re-exported for convenience.
const (
	StatusPending    = domain.SyncStatusPending
	StatusInProgress = domain.SyncStatusInProgress
	StatusComplete   = domain.SyncStatusComplete
	StatusFailed     = domain.SyncStatusFailed
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed status transitions.
// Key is the current status, value is the list of valid next statuses.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusComplete, StatusFailed},
	// Complete datasets re-enter in_progress when their sync ages out;
	// failed ones re-enter on the next run or after an explicit reset.
	StatusComplete: {StatusInProgress, StatusPending},
	StatusFailed:   {StatusInProgress, StatusPending},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a status change with metadata.
type Transition struct {
	From      Status
	To        Status
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to Status, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StatusDescription returns a human-readable description of a status.
func StatusDescription(s Status) string {
	switch s {
	case StatusPending:
		return "Pending - sync state created, not yet started"
	case StatusInProgress:
		return "In progress - pulling pages from the remote service"
	case StatusComplete:
		return "Complete - all pages fetched, cursor at end"
	case StatusFailed:
		return "Failed - last run aborted, cursor preserved for resume"
	default:
		return "Unknown status"
	}
}
