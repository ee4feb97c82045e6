// Package rescan recovers dead-lettered page fetches in the background.
package rescan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/infra/remote"
	"github.com/ndquoc/evalsync/internal/infra/storage"
	"github.com/ndquoc/evalsync/internal/sync/extract"
	"github.com/ndquoc/evalsync/internal/sync/metrics"
)

// RemoteClient is the slice of the resilient client the worker needs.
type RemoteClient interface {
	FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*remote.ResultPage, error)
}

// WorkerConfig holds configuration for the rescan worker.
type WorkerConfig struct {
	Interval   time.Duration // pace between recovery attempts (default: 60s)
	EmptySleep time.Duration // sleep when the queue is empty (default: 10s)
	MaxRetries int           // attempts before a page is dropped (default: 5)
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		Interval:   60 * time.Second,
		EmptySleep: 10 * time.Second,
		MaxRetries: 5,
	}
}

// Worker drains the failed-page queue, re-fetching each page through the
// resilient client. Pages recover least-retried first; the pacing interval
// keeps recovery traffic from competing with live sync runs.
type Worker struct {
	cfg       WorkerConfig
	queue     storage.FailedPageRepository
	client    RemoteClient
	patterns  storage.PatternRepository
	extractor *extract.Extractor
	log       *slog.Logger
}

// NewWorker creates a new rescan worker.
func NewWorker(
	cfg WorkerConfig,
	queue storage.FailedPageRepository,
	client RemoteClient,
	patterns storage.PatternRepository,
	extractor *extract.Extractor,
) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.EmptySleep <= 0 {
		cfg.EmptySleep = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Worker{
		cfg:       cfg,
		queue:     queue,
		client:    client,
		patterns:  patterns,
		extractor: extractor,
		log:       slog.Default().With("component", "rescan"),
	}
}

// Run starts the worker loop. It returns when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting rescan worker", "interval", w.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Rescan worker stopped")
			return nil
		default:
		}

		page, err := w.queue.GetNext(ctx)
		if err != nil {
			w.log.Error("Failed to pop failed page", "error", err)
			if err := w.sleep(ctx, w.cfg.EmptySleep); err != nil {
				return nil
			}
			continue
		}
		if page == nil {
			if err := w.sleep(ctx, w.cfg.EmptySleep); err != nil {
				return nil
			}
			continue
		}

		if err := w.recover(ctx, page); err != nil {
			w.log.Warn("Failed to recover page",
				"dataset", page.DatasetID,
				"cursor", page.Cursor,
				"retry_count", page.RetryCount,
				"error", err)
			w.handleFailure(ctx, page)
		}

		if err := w.sleep(ctx, w.cfg.Interval); err != nil {
			return nil
		}
	}
}

// recover re-fetches one dead-lettered page and folds its results back into
// the experiment's derived patterns.
func (w *Worker) recover(ctx context.Context, page *domain.FailedPage) error {
	result, err := w.client.FetchExperimentResults(ctx, page.ExperimentID, page.Cursor, page.PageSize)
	if err != nil {
		return fmt.Errorf("refetch failed: %w", err)
	}

	if err := w.mergePatterns(ctx, page, result.Results); err != nil {
		return err
	}

	if err := w.queue.MarkResolved(ctx, page.ID); err != nil {
		return fmt.Errorf("failed to mark resolved: %w", err)
	}

	metrics.RescanPagesRecovered.Inc()
	w.log.Info("Recovered failed page",
		"dataset", page.DatasetID,
		"cursor", page.Cursor,
		"items", len(result.Results))
	return nil
}

// mergePatterns re-runs extraction over the recovered results and merges
// the output with the experiment's persisted patterns, keeping the stronger
// confidence for duplicate categories.
func (w *Worker) mergePatterns(ctx context.Context, page *domain.FailedPage, results []domain.ExperimentResult) error {
	if w.extractor == nil || w.patterns == nil || len(results) == 0 {
		return nil
	}

	recovered := w.extractor.Extract(results)
	if len(recovered) == 0 {
		return nil
	}

	existing, err := w.patterns.GetByExperiment(ctx, page.ExperimentID)
	if err != nil {
		return fmt.Errorf("failed to load existing patterns: %w", err)
	}

	byCategory := make(map[string]domain.ExtractedPattern, len(existing))
	for _, p := range existing {
		byCategory[p.Category] = p
	}
	for _, p := range recovered {
		if cur, ok := byCategory[p.Category]; !ok || p.ConfidenceScore > cur.ConfidenceScore {
			byCategory[p.Category] = p
		}
	}

	merged := make([]domain.ExtractedPattern, 0, len(byCategory))
	for _, p := range byCategory {
		merged = append(merged, p)
	}
	if err := w.patterns.ReplaceForExperiment(ctx, page.ExperimentID, merged); err != nil {
		return fmt.Errorf("failed to persist merged patterns: %w", err)
	}
	metrics.PatternsExtracted.WithLabelValues(page.DatasetID).Add(float64(len(recovered)))
	return nil
}

// handleFailure bumps the retry count, dropping pages that exhausted the
// retry budget so the queue cannot fill with permanently broken work.
func (w *Worker) handleFailure(ctx context.Context, page *domain.FailedPage) {
	if page.RetryCount+1 >= w.cfg.MaxRetries {
		w.log.Error("Dropping page after max retries",
			"dataset", page.DatasetID,
			"cursor", page.Cursor,
			"retries", page.RetryCount+1)
		if err := w.queue.MarkResolved(ctx, page.ID); err != nil {
			w.log.Error("Failed to drop exhausted page", "error", err)
		}
		return
	}
	if err := w.queue.IncrementRetry(ctx, page.ID); err != nil {
		w.log.Error("Failed to bump retry count", "error", err)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
