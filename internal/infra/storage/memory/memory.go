// Package memory provides in-memory repository implementations, used when no
// database URL is configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/infra/storage"
)

type MemoryStorage struct {
	states   map[string]*domain.SyncState
	patterns map[string][]domain.ExtractedPattern
	failed   []*domain.FailedPage
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		states:   make(map[string]*domain.SyncState),
		patterns: make(map[string][]domain.ExtractedPattern),
	}
}

// -----------------------------------------------------------------------------
// SyncState Repository
// -----------------------------------------------------------------------------

type SyncStateRepo struct {
	store *MemoryStorage
}

func NewSyncStateRepo(store *MemoryStorage) *SyncStateRepo {
	return &SyncStateRepo{store: store}
}

func (r *SyncStateRepo) Get(ctx context.Context, datasetID string) (*domain.SyncState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	st, ok := r.store.states[datasetID]
	if !ok {
		return nil, storage.ErrSyncStateNotFound
	}
	// Return a copy
	s := *st
	return &s, nil
}

func (r *SyncStateRepo) Save(ctx context.Context, state *domain.SyncState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s := *state
	s.UpdatedAt = time.Now()
	r.store.states[state.DatasetID] = &s
	return nil
}

func (r *SyncStateRepo) UpdateCursor(ctx context.Context, datasetID string, cursor uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, ok := r.store.states[datasetID]
	if !ok {
		return storage.ErrSyncStateNotFound
	}
	st.Cursor = cursor
	st.UpdatedAt = time.Now()
	return nil
}

func (r *SyncStateRepo) UpdateStatus(ctx context.Context, datasetID string, status domain.SyncStatus, retryCount int, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, ok := r.store.states[datasetID]
	if !ok {
		return storage.ErrSyncStateNotFound
	}
	st.Status = status
	st.RetryCount = retryCount
	st.LastError = lastError
	if status == domain.SyncStatusComplete {
		st.LastSyncedAt = time.Now()
	}
	st.UpdatedAt = time.Now()
	return nil
}

func (r *SyncStateRepo) List(ctx context.Context) ([]*domain.SyncState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.SyncState, 0, len(r.store.states))
	for _, st := range r.store.states {
		s := *st
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out, nil
}

func (r *SyncStateRepo) Reset(ctx context.Context, datasetID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, ok := r.store.states[datasetID]
	if !ok {
		return storage.ErrSyncStateNotFound
	}
	st.Cursor = 0
	st.Status = domain.SyncStatusPending
	st.RetryCount = 0
	st.LastError = ""
	st.UpdatedAt = time.Now()
	return nil
}

// -----------------------------------------------------------------------------
// Pattern Repository
// -----------------------------------------------------------------------------

type PatternRepo struct {
	store *MemoryStorage
}

func NewPatternRepo(store *MemoryStorage) *PatternRepo {
	return &PatternRepo{store: store}
}

func (r *PatternRepo) ReplaceForExperiment(ctx context.Context, experimentID string, patterns []domain.ExtractedPattern) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := make([]domain.ExtractedPattern, len(patterns))
	copy(cp, patterns)
	r.store.patterns[experimentID] = cp
	return nil
}

func (r *PatternRepo) GetByExperiment(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stored := r.store.patterns[experimentID]
	out := make([]domain.ExtractedPattern, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConfidenceScore > out[j].ConfidenceScore })
	return out, nil
}

// -----------------------------------------------------------------------------
// FailedPage Repository
// -----------------------------------------------------------------------------

type FailedPageRepo struct {
	store *MemoryStorage
}

func NewFailedPageRepo(store *MemoryStorage) *FailedPageRepo {
	return &FailedPageRepo{store: store}
}

func (r *FailedPageRepo) Add(ctx context.Context, page *domain.FailedPage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p := *page
	r.store.failed = append(r.store.failed, &p)
	return nil
}

func (r *FailedPageRepo) GetNext(ctx context.Context) (*domain.FailedPage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var next *domain.FailedPage
	for _, p := range r.store.failed {
		if next == nil || p.RetryCount < next.RetryCount {
			next = p
		}
	}
	if next == nil {
		return nil, nil
	}
	p := *next
	return &p, nil
}

func (r *FailedPageRepo) IncrementRetry(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.failed {
		if p.ID == id {
			p.RetryCount++
			return nil
		}
	}
	return nil
}

func (r *FailedPageRepo) MarkResolved(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, p := range r.store.failed {
		if p.ID == id {
			r.store.failed = append(r.store.failed[:i], r.store.failed[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *FailedPageRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed), nil
}
