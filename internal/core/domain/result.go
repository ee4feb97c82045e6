package domain

import "time"

// ErrorRecord captures one failure observed during a sync run.
type ErrorRecord struct {
	ID         string
	DatasetID  string
	Cursor     uint64
	Message    string
	OccurredAt time.Time
}

// DatasetSyncResult is the per-dataset slice of a run's outcome.
type DatasetSyncResult struct {
	DatasetID      string
	Status         SyncStatus
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	Errors         []ErrorRecord
}

// BatchSyncResult is produced once per sync invocation. Immutable after the
// run finalizes; callers inspect ItemsFailed/Errors rather than relying on an
// error to detect degraded runs.
type BatchSyncResult struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	Datasets       []DatasetSyncResult
}

// Errors returns all error records across datasets, in dataset order.
func (r *BatchSyncResult) Errors() []ErrorRecord {
	var out []ErrorRecord
	for _, d := range r.Datasets {
		out = append(out, d.Errors...)
	}
	return out
}
