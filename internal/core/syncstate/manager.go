package syncstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/infra/storage"
)

var (
	// ErrSyncStateNotFound is returned when a sync state doesn't exist.
	ErrSyncStateNotFound = storage.ErrSyncStateNotFound

	// ErrCursorRegression is returned when an advance would move the cursor backwards.
	ErrCursorRegression = errors.New("cursor regression detected")
)

// Manager handles sync state operations with state machine enforcement.
// The engine is the only writer for a given dataset during a run, so writes
// for one dataset are naturally serialized; the manager's own mutex only
// guards its in-memory collectors and callback registration.
type Manager struct {
	repo          storage.SyncStateRepository
	mu            sync.RWMutex
	stateCallback func(datasetID string, t Transition)
	history       map[string]*MetricsCollector
}

// NewManager creates a new sync state manager with the given repository.
func NewManager(repo storage.SyncStateRepository) *Manager {
	return &Manager{
		repo:    repo,
		history: make(map[string]*MetricsCollector),
	}
}

// Get retrieves the current sync state for a dataset.
func (m *Manager) Get(ctx context.Context, datasetID string) (*domain.SyncState, error) {
	return m.repo.Get(ctx, datasetID)
}

// LoadOrCreate retrieves the sync state for a dataset, creating a pending
// record on first sync attempt.
func (m *Manager) LoadOrCreate(ctx context.Context, datasetID string) (*domain.SyncState, error) {
	st, err := m.repo.Get(ctx, datasetID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrSyncStateNotFound) {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	st = &domain.SyncState{
		DatasetID: datasetID,
		Status:    StatusPending,
	}
	if err := m.repo.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to create sync state: %w", err)
	}

	m.mu.Lock()
	m.history[datasetID] = NewMetricsCollector(100)
	m.mu.Unlock()

	return st, nil
}

// Begin transitions a dataset to in_progress for a new sync attempt.
func (m *Manager) Begin(ctx context.Context, datasetID string, retryCount int) error {
	return m.setStatus(ctx, datasetID, StatusInProgress, retryCount, "", "sync started")
}

// AdvanceCursor moves the cursor forward after a page is fully dispatched.
// The cursor is monotonically non-decreasing within a run.
func (m *Manager) AdvanceCursor(ctx context.Context, datasetID string, cursor uint64) error {
	st, err := m.repo.Get(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	if cursor < st.Cursor {
		return fmt.Errorf("%w: cursor at %d, got %d", ErrCursorRegression, st.Cursor, cursor)
	}
	if cursor == st.Cursor {
		// Duplicate delivery / re-process. Treat as success.
		return nil
	}

	if err := m.repo.UpdateCursor(ctx, datasetID, cursor); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	m.mu.Lock()
	if collector, ok := m.history[datasetID]; ok {
		collector.RecordCursor(cursor, time.Now())
	}
	m.mu.Unlock()

	return nil
}

// Complete marks a dataset fully synced. The repository stamps last_synced_at.
func (m *Manager) Complete(ctx context.Context, datasetID string, retryCount int) error {
	return m.setStatus(ctx, datasetID, StatusComplete, retryCount, "", "all pages fetched")
}

// Fail marks a dataset failed, preserving the cursor for resume.
func (m *Manager) Fail(ctx context.Context, datasetID string, retryCount int, cause string) error {
	return m.setStatus(ctx, datasetID, StatusFailed, retryCount, cause, cause)
}

// Reset returns a dataset to pending with a zero cursor. This is the only
// path that moves a cursor backwards.
func (m *Manager) Reset(ctx context.Context, datasetID string) error {
	st, err := m.repo.Get(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	if !CanTransition(st.Status, StatusPending) {
		return fmt.Errorf(
			"%w: cannot transition from %s to %s",
			ErrInvalidTransition, st.Status, StatusPending,
		)
	}

	if err := m.repo.Reset(ctx, datasetID); err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}

	transition := NewTransition(st.Status, StatusPending, "manual reset")
	m.record(datasetID, transition)
	return nil
}

// List retrieves all known sync states.
func (m *Manager) List(ctx context.Context) ([]*domain.SyncState, error) {
	return m.repo.List(ctx)
}

// GetMetrics returns performance metrics for a dataset.
func (m *Manager) GetMetrics(datasetID string) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if collector, ok := m.history[datasetID]; ok {
		return collector.GetMetrics()
	}

	return Metrics{}
}

// SetStateChangeCallback registers a callback for status changes.
func (m *Manager) SetStateChangeCallback(fn func(datasetID string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = fn
}

func (m *Manager) setStatus(ctx context.Context, datasetID string, status Status, retryCount int, lastError, reason string) error {
	st, err := m.repo.Get(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	if st.Status == status {
		// Idempotent re-apply; refresh counters only.
		if err := m.repo.UpdateStatus(ctx, datasetID, status, retryCount, lastError); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return nil
	}

	if !CanTransition(st.Status, status) {
		return fmt.Errorf(
			"%w: cannot transition from %s to %s",
			ErrInvalidTransition, st.Status, status,
		)
	}

	if err := m.repo.UpdateStatus(ctx, datasetID, status, retryCount, lastError); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	m.record(datasetID, NewTransition(st.Status, status, reason))
	return nil
}

func (m *Manager) record(datasetID string, t Transition) {
	m.mu.Lock()
	if collector, ok := m.history[datasetID]; ok {
		collector.RecordTransition(t)
	}
	callback := m.stateCallback
	m.mu.Unlock()

	if callback != nil {
		callback(datasetID, t)
	}
}
