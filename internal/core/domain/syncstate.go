package domain

import "time"

// SyncState tracks sync progress for one dataset
type SyncState struct {
	DatasetID    string
	Cursor       uint64
	LastSyncedAt time.Time
	Status       SyncStatus
	RetryCount   int
	LastError    string
	UpdatedAt    time.Time
}

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusComplete   SyncStatus = "complete"
	SyncStatusFailed     SyncStatus = "failed"
)
