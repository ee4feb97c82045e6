package domain

// FailedPage represents a page range that failed fetching during a sync run
// and was dead-lettered for later rescan.
type FailedPage struct {
	ID           string      `json:"id"`
	DatasetID    string      `json:"dataset_id"`
	ExperimentID string      `json:"experiment_id"`
	Cursor       uint64      `json:"cursor"`
	PageSize     int         `json:"page_size"`
	FailureType  FailureType `json:"failure_type"`
	Error        string      `json:"error_msg"`
	RetryCount   int         `json:"retry_count"`
	CreatedAt    uint64      `json:"created_at"`
}

type FailureType string

const (
	FailureTypeRemote    FailureType = "remote"
	FailureTypeTimeout   FailureType = "timeout"
	FailureTypeDatabase  FailureType = "database"
	FailureTypePermanent FailureType = "permanent"
)
