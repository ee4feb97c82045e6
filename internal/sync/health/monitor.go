package health

import (
	"context"
	"sync"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	"github.com/ndquoc/evalsync/internal/infra/remote/breaker"
	"github.com/ndquoc/evalsync/internal/infra/storage"
)

// BreakerStateFetcher reports the remote client's circuit breaker state.
type BreakerStateFetcher interface {
	BreakerState() breaker.State
}

// Monitor aggregates health status from the sync state store, the failed
// page queue and the remote circuit breaker.
type Monitor struct {
	states     *syncstate.Manager
	failedRepo storage.FailedPageRepository
	client     BreakerStateFetcher
	staleAfter time.Duration
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. staleAfter is how long a
// COMPLETE dataset may go without a sync before it counts as degraded.
func NewMonitor(
	states *syncstate.Manager,
	failedRepo storage.FailedPageRepository,
	client BreakerStateFetcher,
	staleAfter time.Duration,
) *Monitor {
	return &Monitor{
		states:     states,
		failedRepo: failedRepo,
		client:     client,
		staleAfter: staleAfter,
	}
}

// Check builds a health report. Reports are cached briefly so health
// probes don't hammer the state store.
func (m *Monitor) Check(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Datasets:     make(map[string]DatasetHealth),
	}

	if m.client != nil {
		state := m.client.BreakerState()
		report.BreakerState = state.String()
		// An open breaker means the remote dependency is down for everyone.
		if state == breaker.StateOpen {
			report.SystemStatus = StatusCritical
		} else if state == breaker.StateHalfOpen {
			report.SystemStatus = StatusDegraded
		}
	}

	if m.failedRepo != nil {
		if count, err := m.failedRepo.Count(ctx); err == nil {
			report.FailedPages = count
			if count > 50 {
				report.SystemStatus = StatusCritical
			} else if count > 0 && report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	states, err := m.states.List(ctx)
	if err != nil {
		report.SystemStatus = StatusCritical
		m.lastCheck = time.Now()
		m.lastReport = report
		return report
	}

	for _, st := range states {
		h := DatasetHealth{
			DatasetID:  st.DatasetID,
			Status:     StatusHealthy,
			SyncStatus: string(st.Status),
			Cursor:     st.Cursor,
			RetryCount: st.RetryCount,
			LastError:  st.LastError,
		}
		if !st.LastSyncedAt.IsZero() {
			h.StaleSeconds = time.Since(st.LastSyncedAt).Seconds()
		}

		switch {
		case st.Status == domain.SyncStatusFailed:
			h.Status = StatusDegraded
			if st.RetryCount > 5 {
				h.Status = StatusCritical
			}
		case st.Status == domain.SyncStatusComplete && m.staleAfter > 0 &&
			time.Since(st.LastSyncedAt) > m.staleAfter:
			h.Status = StatusDegraded
		}

		report.Datasets[st.DatasetID] = h
	}

	report.SystemStatus = report.Aggregate()
	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
