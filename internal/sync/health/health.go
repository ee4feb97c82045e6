// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// DatasetHealth contains health metrics for one synced dataset.
type DatasetHealth struct {
	DatasetID    string       `json:"dataset_id"`
	Status       SystemStatus `json:"status"`
	SyncStatus   string       `json:"sync_status"`
	Cursor       uint64       `json:"cursor"`
	StaleSeconds float64      `json:"stale_seconds"`
	RetryCount   int          `json:"retry_count"`
	LastError    string       `json:"last_error,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus             `json:"system_status"`
	BreakerState string                   `json:"breaker_state"`
	FailedPages  int                      `json:"failed_pages"`
	Datasets     map[string]DatasetHealth `json:"datasets"`
}

// Aggregate returns the worst status across all datasets and the breaker.
func (r *Report) Aggregate() SystemStatus {
	status := r.SystemStatus
	for _, d := range r.Datasets {
		if d.Status == StatusCritical {
			return StatusCritical
		}
		if d.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
