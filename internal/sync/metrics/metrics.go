package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteCallsTotal tracks remote calls per operation and outcome
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_remote_calls_total",
			Help: "Total number of remote service calls",
		},
		[]string{"operation", "outcome"},
	)

	// RemoteCallLatency tracks remote call latency
	RemoteCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evalsync_remote_call_latency_seconds",
			Help:    "Remote call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// BreakerState tracks the circuit breaker state (0=closed, 1=open, 2=half_open)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evalsync_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
	)

	// ItemsSynced tracks items pulled per dataset
	ItemsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_items_synced_total",
			Help: "Total number of experiment results synced",
		},
		[]string{"dataset"},
	)

	// PagesFailed tracks page fetches that exhausted their retry budget
	PagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_pages_failed_total",
			Help: "Total number of failed page fetches",
		},
		[]string{"dataset"},
	)

	// SyncRunDuration tracks wall-clock duration of sync runs
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evalsync_sync_run_duration_seconds",
			Help:    "Duration of batch sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// PatternsExtracted tracks patterns produced per dataset
	PatternsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_patterns_extracted_total",
			Help: "Total number of patterns extracted",
		},
		[]string{"dataset"},
	)

	// RescanPagesRecovered tracks dead-lettered pages recovered by the rescan worker
	RescanPagesRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evalsync_rescan_pages_recovered_total",
			Help: "Total number of failed pages recovered by rescan",
		},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evalsync_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
