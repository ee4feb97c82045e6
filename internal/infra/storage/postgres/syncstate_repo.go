package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/infra/storage"
)

// SyncStateRepo implements storage.SyncStateRepository using PostgreSQL.
// Every statement targets a single row keyed by dataset_id, so concurrent
// writers for different datasets never contend.
type SyncStateRepo struct {
	db *DB
}

// NewSyncStateRepo creates a new PostgreSQL sync state repository.
func NewSyncStateRepo(db *DB) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

type syncStateRow struct {
	DatasetID    string       `db:"dataset_id"`
	Cursor       int64        `db:"cursor"`
	LastSyncedAt sql.NullTime `db:"last_synced_at"`
	Status       string       `db:"status"`
	RetryCount   int          `db:"retry_count"`
	LastError    string       `db:"last_error"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r syncStateRow) toDomain() *domain.SyncState {
	st := &domain.SyncState{
		DatasetID:  r.DatasetID,
		Cursor:     uint64(r.Cursor),
		Status:     domain.SyncStatus(r.Status),
		RetryCount: r.RetryCount,
		LastError:  r.LastError,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastSyncedAt.Valid {
		st.LastSyncedAt = r.LastSyncedAt.Time
	}
	return st
}

// Get retrieves the sync state for a dataset.
func (r *SyncStateRepo) Get(ctx context.Context, datasetID string) (*domain.SyncState, error) {
	var row syncStateRow
	err := r.db.GetContext(ctx, &row,
		`SELECT dataset_id, cursor, last_synced_at, status, retry_count, last_error, updated_at
		 FROM sync_state WHERE dataset_id = $1`, datasetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSyncStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return row.toDomain(), nil
}

// Save saves/updates the sync state for a dataset.
func (r *SyncStateRepo) Save(ctx context.Context, state *domain.SyncState) error {
	var lastSynced sql.NullTime
	if !state.LastSyncedAt.IsZero() {
		lastSynced = sql.NullTime{Time: state.LastSyncedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_state (dataset_id, cursor, last_synced_at, status, retry_count, last_error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (dataset_id) DO UPDATE SET
		   cursor = EXCLUDED.cursor,
		   last_synced_at = EXCLUDED.last_synced_at,
		   status = EXCLUDED.status,
		   retry_count = EXCLUDED.retry_count,
		   last_error = EXCLUDED.last_error,
		   updated_at = now()`,
		state.DatasetID, int64(state.Cursor), lastSynced, string(state.Status), state.RetryCount, state.LastError)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// UpdateCursor advances the cursor for a dataset. The WHERE clause keeps the
// cursor monotonically non-decreasing even under a misbehaving caller.
func (r *SyncStateRepo) UpdateCursor(ctx context.Context, datasetID string, cursor uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_state SET cursor = $1, updated_at = now()
		 WHERE dataset_id = $2 AND cursor <= $1`,
		int64(cursor), datasetID)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cursor update: %w", err)
	}
	if affected == 0 {
		return storage.ErrSyncStateNotFound
	}
	return nil
}

// UpdateStatus updates status, retry counter and last error. Completion also
// stamps last_synced_at.
func (r *SyncStateRepo) UpdateStatus(ctx context.Context, datasetID string, status domain.SyncStatus, retryCount int, lastError string) error {
	query := `UPDATE sync_state SET status = $1, retry_count = $2, last_error = $3, updated_at = now()
		 WHERE dataset_id = $4`
	if status == domain.SyncStatusComplete {
		query = `UPDATE sync_state SET status = $1, retry_count = $2, last_error = $3,
		   last_synced_at = now(), updated_at = now()
		 WHERE dataset_id = $4`
	}
	res, err := r.db.ExecContext(ctx, query, string(status), retryCount, lastError, datasetID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return storage.ErrSyncStateNotFound
	}
	return nil
}

// List retrieves all known sync states.
func (r *SyncStateRepo) List(ctx context.Context) ([]*domain.SyncState, error) {
	var rows []syncStateRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT dataset_id, cursor, last_synced_at, status, retry_count, last_error, updated_at
		 FROM sync_state ORDER BY dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	states := make([]*domain.SyncState, 0, len(rows))
	for _, row := range rows {
		states = append(states, row.toDomain())
	}
	return states, nil
}

// Reset returns a dataset to pending with a zero cursor.
func (r *SyncStateRepo) Reset(ctx context.Context, datasetID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_state SET cursor = 0, status = $1, retry_count = 0, last_error = '', updated_at = now()
		 WHERE dataset_id = $2`,
		string(domain.SyncStatusPending), datasetID)
	if err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reset: %w", err)
	}
	if affected == 0 {
		return storage.ErrSyncStateNotFound
	}
	return nil
}
