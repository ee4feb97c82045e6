package control

import (
	"testing"
	"time"

	"github.com/ndquoc/evalsync/internal/core/config"
)

func TestNewService_MemoryStorage(t *testing.T) {
	cfg := config.AppConfig{}
	cfg.Server.Port = 0
	cfg.Remote.BaseURL = "http://localhost:9999"
	cfg.Sync.BatchSize = 10
	cfg.Sync.ConcurrentLimit = 2

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.db != nil {
		t.Error("expected no database connection without a URL")
	}
	if svc.redisClient != nil {
		t.Error("expected no redis connection without a URL")
	}
	if svc.rescanWorker != nil {
		t.Error("expected rescan worker disabled by default")
	}
	if svc.engine == nil || svc.states == nil || svc.healthServer == nil {
		t.Error("expected core components wired")
	}
}

func TestNewService_RescanEnabled(t *testing.T) {
	cfg := config.AppConfig{}
	cfg.Remote.BaseURL = "http://localhost:9999"
	cfg.Rescan.Enabled = true
	cfg.Rescan.IntervalSeconds = 1

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.rescanWorker == nil {
		t.Error("expected rescan worker when enabled")
	}
}

func TestSecondsToDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{0.5, 500 * time.Millisecond},
		{300, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := secondsToDuration(tt.seconds); got != tt.want {
			t.Errorf("secondsToDuration(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
