// Package control wires the sync service together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/ndquoc/evalsync/internal/core/config"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	redisclient "github.com/ndquoc/evalsync/internal/infra/redis"
	"github.com/ndquoc/evalsync/internal/infra/remote"
	"github.com/ndquoc/evalsync/internal/infra/remote/breaker"
	"github.com/ndquoc/evalsync/internal/infra/storage"
	"github.com/ndquoc/evalsync/internal/infra/storage/memory"
	"github.com/ndquoc/evalsync/internal/infra/storage/postgres"
	"github.com/ndquoc/evalsync/internal/sync/engine"
	"github.com/ndquoc/evalsync/internal/sync/extract"
	"github.com/ndquoc/evalsync/internal/sync/health"
	"github.com/ndquoc/evalsync/internal/sync/rescan"
)

// Service is the main application struct that manages the sync lifecycle.
type Service struct {
	cfg          config.AppConfig
	client       *remote.Client
	engine       *engine.Engine
	states       *syncstate.Manager
	rescanWorker *rescan.Worker
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
	stop         chan struct{}
}

// NewService creates a Service with all dependencies initialized.
func NewService(cfg config.AppConfig) (*Service, error) {
	log := slog.Default()

	// 1. Initialize storage.
	var stateRepo storage.SyncStateRepository
	var patternRepo storage.PatternRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations. Goose needs the raw *sql.DB that sqlx wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		stateRepo = postgres.NewSyncStateRepo(db)
		patternRepo = postgres.NewPatternRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		stateRepo = memory.NewSyncStateRepo(store)
		patternRepo = memory.NewPatternRepo(store)
		log.Info("Using memory storage")
	}

	states := syncstate.NewManager(stateRepo)

	// 2. Initialize the dead-letter queue. Redis when configured, memory
	// fallback otherwise so the engine always has somewhere to park
	// failed pages.
	var redisClient *redisclient.Client
	var failedRepo storage.FailedPageRepository
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using memory dead-letter queue", "error", err)
		} else {
			failedRepo = redisclient.NewFailedPageRepo(redisClient, "evalsync")
			log.Info("Using Redis dead-letter queue")
		}
	}
	if failedRepo == nil {
		failedRepo = memory.NewFailedPageRepo(memory.NewMemoryStorage())
	}

	// 3. Initialize the resilient remote client.
	transport := remote.NewHTTPTransport(
		cfg.Remote.BaseURL,
		cfg.Remote.APIKey,
		secondsToDuration(cfg.Remote.TimeoutSeconds),
	)
	client := remote.NewClient(
		transport,
		breaker.Config{
			FailureThreshold: cfg.Remote.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Remote.Breaker.SuccessThreshold,
			Timeout:          secondsToDuration(cfg.Remote.Breaker.CircuitTimeout),
		},
		remote.RetryConfig{
			MaxAttempts:     cfg.Remote.Retry.MaxAttempts,
			BaseDelay:       secondsToDuration(cfg.Remote.Retry.BaseDelay),
			MaxDelay:        secondsToDuration(cfg.Remote.Retry.MaxDelay),
			ExponentialBase: cfg.Remote.Retry.ExponentialBase,
			Jitter:          cfg.Remote.Retry.Jitter,
		},
		log,
	)

	// 4. Initialize the extractor and the batch engine.
	extractor := extract.New(extract.Thresholds{
		QAThreshold:              cfg.Extract.QAThreshold,
		RAGThreshold:             cfg.Extract.RAGThreshold,
		ConfidenceThreshold:      cfg.Extract.ConfidenceThreshold,
		MaxPatternsPerExperiment: cfg.Extract.MaxPatternsPerExperiment,
	})

	eng := engine.New(engine.Config{
		Client:           client,
		States:           states,
		FailedPages:      failedRepo,
		Patterns:         patternRepo,
		Extractor:        extractor,
		BatchSize:        cfg.Sync.BatchSize,
		BatchTimeout:     secondsToDuration(cfg.Sync.BatchTimeoutSeconds),
		ProgressInterval: cfg.Sync.ProgressInterval,
		ConcurrentLimit:  cfg.Sync.ConcurrentLimit,
		MaxAge:           time.Duration(cfg.Sync.MaxAgeDays) * 24 * time.Hour,
		Logger:           log,
	})

	// 5. Initialize the rescan worker when enabled.
	var rescanWorker *rescan.Worker
	if cfg.Rescan.Enabled {
		rescanWorker = rescan.NewWorker(
			rescan.WorkerConfig{
				Interval:   secondsToDuration(cfg.Rescan.IntervalSeconds),
				MaxRetries: cfg.Rescan.MaxRetries,
			},
			failedRepo,
			client,
			patternRepo,
			extractor,
		)
	}

	// 6. Health monitor + server. A dataset counts as stale after two
	// missed sync windows.
	staleAfter := 2 * (time.Duration(cfg.Sync.MaxAgeDays) * 24 * time.Hour)
	healthMon := health.NewMonitor(states, failedRepo, client, staleAfter)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Service{
		cfg:          cfg,
		client:       client,
		engine:       eng,
		states:       states,
		rescanWorker: rescanWorker,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
		stop:         make(chan struct{}),
	}, nil
}

// Start runs the service until ctx is cancelled or Stop is called. Sync runs
// are driven by a ticker at the configured scan interval, with one run
// immediately on startup.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	if s.rescanWorker != nil {
		go func() {
			if err := s.rescanWorker.Run(ctx); err != nil {
				s.log.Error("Rescan worker failed", "error", err)
			}
		}()
	}

	interval := secondsToDuration(s.cfg.Sync.ScanIntervalSeconds)
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")
	close(s.stop)

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}

// RunOnce triggers a single sync run outside the ticker schedule.
func (s *Service) RunOnce(ctx context.Context) error {
	_, err := s.engine.Run(ctx, s.cfg.Sync.Datasets, s.logProgress)
	return err
}

func (s *Service) runOnce(ctx context.Context) {
	result, err := s.engine.Run(ctx, s.cfg.Sync.Datasets, s.logProgress)
	if err != nil {
		s.log.Error("Sync run aborted", "error", err)
		return
	}
	if result.ItemsFailed > 0 {
		s.log.Warn("Sync run degraded",
			"run_id", result.RunID,
			"items_processed", result.ItemsProcessed,
			"items_failed", result.ItemsFailed,
			"errors", len(result.Errors()))
	}
}

func (s *Service) logProgress(processed, total int, datasetID string) {
	s.log.Debug("Sync progress", "dataset", datasetID, "processed", processed, "total", total)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
