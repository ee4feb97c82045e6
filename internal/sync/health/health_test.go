package health

import (
	"context"
	"testing"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	"github.com/ndquoc/evalsync/internal/infra/remote/breaker"
	"github.com/ndquoc/evalsync/internal/infra/storage/memory"
)

// =============================================================================
// Stubs
// =============================================================================

type stubBreaker struct {
	state breaker.State
}

func (s *stubBreaker) BreakerState() breaker.State { return s.state }

func newTestMonitor(t *testing.T, states []*domain.SyncState, failedPages int, bs breaker.State) *Monitor {
	t.Helper()
	store := memory.NewMemoryStorage()
	repo := memory.NewSyncStateRepo(store)
	for _, st := range states {
		if err := repo.Save(context.Background(), st); err != nil {
			t.Fatalf("failed to seed state: %v", err)
		}
	}
	failed := memory.NewFailedPageRepo(store)
	for i := 0; i < failedPages; i++ {
		page := &domain.FailedPage{ID: string(rune('a' + i)), DatasetID: "ds-1"}
		if err := failed.Add(context.Background(), page); err != nil {
			t.Fatalf("failed to seed page: %v", err)
		}
	}
	return NewMonitor(syncstate.NewManager(repo), failed, &stubBreaker{state: bs}, time.Hour)
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusComplete, LastSyncedAt: time.Now()},
	}, 0, breaker.StateClosed)

	report := monitor.Check(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
}

func TestMonitor_DegradedOnFailedDataset(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusFailed, RetryCount: 1, LastError: "connection refused"},
	}, 0, breaker.StateClosed)

	report := monitor.Check(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Datasets["ds-1"].LastError == "" {
		t.Error("expected last error surfaced in report")
	}
}

func TestMonitor_DegradedOnStaleness(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusComplete, LastSyncedAt: time.Now().Add(-2 * time.Hour)},
	}, 0, breaker.StateClosed)

	report := monitor.Check(context.Background())
	if report.Datasets["ds-1"].Status != StatusDegraded {
		t.Errorf("expected stale dataset degraded, got %s", report.Datasets["ds-1"].Status)
	}
}

func TestMonitor_CriticalOnOpenBreaker(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusComplete, LastSyncedAt: time.Now()},
	}, 0, breaker.StateOpen)

	report := monitor.Check(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical with open breaker, got %s", report.SystemStatus)
	}
	if report.BreakerState != "open" {
		t.Errorf("expected breaker state open, got %s", report.BreakerState)
	}
}

func TestMonitor_CriticalOnExcessiveRetries(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusFailed, RetryCount: 6},
	}, 0, breaker.StateClosed)

	report := monitor.Check(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
}

func TestMonitor_DegradedOnDeadLetters(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusComplete, LastSyncedAt: time.Now()},
	}, 3, breaker.StateClosed)

	report := monitor.Check(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded with queued dead letters, got %s", report.SystemStatus)
	}
	if report.FailedPages != 3 {
		t.Errorf("expected 3 failed pages, got %d", report.FailedPages)
	}
}

func TestMonitor_CachesReports(t *testing.T) {
	monitor := newTestMonitor(t, []*domain.SyncState{
		{DatasetID: "ds-1", Status: domain.SyncStatusComplete, LastSyncedAt: time.Now()},
	}, 0, breaker.StateClosed)

	first := monitor.Check(context.Background())
	second := monitor.Check(context.Background())
	if first != second {
		t.Error("expected cached report within the rate-limit window")
	}
}
