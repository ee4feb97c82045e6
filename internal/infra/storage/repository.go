package storage

import (
	"context"
	"errors"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

var (
	// ErrSyncStateNotFound is returned when a sync state doesn't exist
	ErrSyncStateNotFound = errors.New("sync state not found")
)

// SyncStateRepository persists per-dataset sync progress. Implementations
// must support read-modify-write per dataset without cross-dataset locking.
type SyncStateRepository interface {
	// Get retrieves the sync state for a dataset
	Get(ctx context.Context, datasetID string) (*domain.SyncState, error)

	// Save saves/updates the sync state (row-level upsert)
	Save(ctx context.Context, state *domain.SyncState) error

	// UpdateCursor advances the cursor for a dataset (atomic operation)
	UpdateCursor(ctx context.Context, datasetID string, cursor uint64) error

	// UpdateStatus updates status, retry counter and last error
	UpdateStatus(ctx context.Context, datasetID string, status domain.SyncStatus, retryCount int, lastError string) error

	// List retrieves all known sync states
	List(ctx context.Context) ([]*domain.SyncState, error)

	// Reset returns a dataset to pending with a zero cursor
	Reset(ctx context.Context, datasetID string) error
}

// PatternRepository persists extracted patterns per experiment.
type PatternRepository interface {
	// ReplaceForExperiment replaces all patterns derived from an experiment
	ReplaceForExperiment(ctx context.Context, experimentID string, patterns []domain.ExtractedPattern) error

	// GetByExperiment retrieves patterns for an experiment, ordered by confidence
	GetByExperiment(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error)
}

// FailedPageRepository is the dead-letter queue for page fetches that
// exhausted their retry budget during a sync run.
type FailedPageRepository interface {
	// Add enqueues a failed page
	Add(ctx context.Context, page *domain.FailedPage) error

	// GetNext retrieves the failed page with the fewest retries
	GetNext(ctx context.Context) (*domain.FailedPage, error)

	// IncrementRetry increments the retry count for a failed page
	IncrementRetry(ctx context.Context, id string) error

	// MarkResolved removes a recovered page
	MarkResolved(ctx context.Context, id string) error

	// Count returns the number of queued pages
	Count(ctx context.Context) (int, error)
}
