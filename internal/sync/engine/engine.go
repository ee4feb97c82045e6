// Package engine orchestrates batch synchronization of experiment results
// across many datasets, incrementally and resumably, under a shared
// concurrency ceiling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	"github.com/ndquoc/evalsync/internal/infra/remote"
	"github.com/ndquoc/evalsync/internal/infra/storage"
	"github.com/ndquoc/evalsync/internal/sync/extract"
	"github.com/ndquoc/evalsync/internal/sync/metrics"
)

// ErrBatchTimeout marks datasets that were cut off by the run's soft deadline.
var ErrBatchTimeout = errors.New("batch timeout exceeded")

// RemoteClient is the slice of the resilient client the engine drives.
type RemoteClient interface {
	FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*remote.ResultPage, error)
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)
	AnalyzeDataset(ctx context.Context, datasetID string) (*domain.DatasetAnalysis, error)
}

// ProgressFunc is invoked periodically with running totals for one dataset.
// It is an observation hook, not a control point; it must not block.
type ProgressFunc func(processed, total int, datasetID string)

// Config holds engine dependencies and tuning.
type Config struct {
	Client       RemoteClient
	States       *syncstate.Manager
	FailedPages  storage.FailedPageRepository // optional dead-letter queue
	Patterns     storage.PatternRepository    // optional pattern persistence
	Extractor    *extract.Extractor

	BatchSize        int
	BatchTimeout     time.Duration
	ProgressInterval int
	ConcurrentLimit  int
	MaxAge           time.Duration // COMPLETE datasets younger than this are skipped

	Logger *slog.Logger
}

// Engine runs batch sync invocations. Safe for one Run at a time per
// instance; datasets within a run are synced concurrently up to
// ConcurrentLimit, pages within a dataset strictly sequentially.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

// New creates a batch sync engine.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ConcurrentLimit <= 0 {
		cfg.ConcurrentLimit = 1
	}
	return &Engine{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Run synchronizes the given datasets against the remote service. An empty
// work list means "discover": the remote dataset listing becomes the work
// list. Datasets are processed in caller order up to the concurrency
// ceiling; a dataset's failure never aborts the others.
//
// Run always returns a BatchSyncResult, even on partial failure; callers
// inspect ItemsFailed and Errors to detect degraded runs. The returned error
// is non-nil only for cancellation.
func (e *Engine) Run(ctx context.Context, datasetIDs []string, onProgress ProgressFunc) (*domain.BatchSyncResult, error) {
	start := e.now()
	runID := uuid.NewString()

	if len(datasetIDs) == 0 {
		datasets, err := e.cfg.Client.ListDatasets(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list datasets: %w", err)
		}
		for _, d := range datasets {
			datasetIDs = append(datasetIDs, d.ID)
		}
	}

	e.log.Info("Sync run started", "run_id", runID, "datasets", len(datasetIDs))

	var deadline time.Time
	if e.cfg.BatchTimeout > 0 {
		deadline = start.Add(e.cfg.BatchTimeout)
	}

	// One slot per dataset keeps caller order in the final result.
	results := make([]domain.DatasetSyncResult, len(datasetIDs))

	var g errgroup.Group
	g.SetLimit(e.cfg.ConcurrentLimit)

	for i, id := range datasetIDs {
		g.Go(func() error {
			// Soft deadline: datasets not yet started when it passes are
			// failed without touching their persisted state.
			if !deadline.IsZero() && e.now().After(deadline) {
				results[i] = timeoutResult(id)
				return nil
			}
			results[i] = e.syncDataset(ctx, id, deadline, onProgress)
			return nil
		})
	}
	g.Wait()

	out := &domain.BatchSyncResult{
		RunID:     runID,
		StartedAt: start,
		Duration:  e.now().Sub(start),
		Datasets:  results,
	}
	for _, d := range results {
		out.ItemsProcessed += d.ItemsProcessed
		out.ItemsSucceeded += d.ItemsSucceeded
		out.ItemsFailed += d.ItemsFailed
	}
	metrics.SyncRunDuration.Observe(out.Duration.Seconds())

	e.log.Info("Sync run finished",
		"run_id", runID,
		"duration", out.Duration,
		"items_processed", out.ItemsProcessed,
		"items_failed", out.ItemsFailed)

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// syncDataset drives one dataset from its persisted cursor to completion.
func (e *Engine) syncDataset(ctx context.Context, datasetID string, deadline time.Time, onProgress ProgressFunc) domain.DatasetSyncResult {
	res := domain.DatasetSyncResult{DatasetID: datasetID, Status: domain.SyncStatusFailed}

	// 1. Load (or create) persisted progress.
	st, err := e.cfg.States.LoadOrCreate(ctx, datasetID)
	if err != nil {
		res.Errors = append(res.Errors, e.errorRecord(datasetID, 0, err))
		return res
	}

	// 2. Skip recently completed datasets.
	if st.Status == domain.SyncStatusComplete && e.cfg.MaxAge > 0 && e.now().Sub(st.LastSyncedAt) < e.cfg.MaxAge {
		e.log.Debug("Dataset fresh, skipping", "dataset", datasetID, "last_synced_at", st.LastSyncedAt)
		res.Status = domain.SyncStatusComplete
		return res
	}

	retryCount := st.RetryCount
	if err := e.cfg.States.Begin(ctx, datasetID, retryCount); err != nil {
		res.Errors = append(res.Errors, e.errorRecord(datasetID, st.Cursor, err))
		return res
	}

	// 3. Resolve the dataset's experiment and expected result count.
	analysis, err := e.cfg.Client.AnalyzeDataset(ctx, datasetID)
	if err != nil {
		res.Errors = append(res.Errors, e.errorRecord(datasetID, st.Cursor, err))
		e.fail(ctx, datasetID, retryCount+1, err)
		return res
	}
	total := analysis.ResultCount

	// 4. Fetch pages sequentially from the persisted cursor. Failed pages
	// are dead-lettered and skipped so one bad page cannot wedge the
	// dataset; the rescan worker recovers them later.
	cursor := st.Cursor
	var collected []domain.ExperimentResult
	pageFailures := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			// Cancellation: persist partial cursor progress, mark failed.
			res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
			e.fail(context.WithoutCancel(ctx), datasetID, retryCount, err)
			return res
		}
		if !deadline.IsZero() && e.now().After(deadline) {
			res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, ErrBatchTimeout))
			e.fail(ctx, datasetID, retryCount, ErrBatchTimeout)
			return res
		}
		if total > 0 && cursor >= uint64(total) {
			break
		}

		page, err := e.cfg.Client.FetchExperimentResults(ctx, analysis.ExperimentID, cursor, e.cfg.BatchSize)
		if err != nil {
			pageFailures++
			retryCount++
			lastErr = err
			res.ItemsFailed += e.cfg.BatchSize
			res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
			metrics.PagesFailed.WithLabelValues(datasetID).Inc()
			e.deadLetter(ctx, datasetID, analysis.ExperimentID, cursor, err)
			e.log.Warn("Page fetch failed, skipping",
				"dataset", datasetID, "cursor", cursor, "error", err)

			// Skip past the failed page and keep going.
			cursor += uint64(e.cfg.BatchSize)
			if err := e.cfg.States.AdvanceCursor(ctx, datasetID, cursor); err != nil {
				res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
				e.fail(ctx, datasetID, retryCount, err)
				return res
			}
			continue
		}

		n := len(page.Results)
		res.ItemsProcessed += n
		res.ItemsSucceeded += n
		collected = append(collected, page.Results...)
		metrics.ItemsSynced.WithLabelValues(datasetID).Add(float64(n))

		if page.NextCursor <= cursor && !page.Done {
			// A non-advancing cursor would loop forever.
			err := fmt.Errorf("remote cursor stalled at %d", cursor)
			res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
			e.fail(ctx, datasetID, retryCount+1, err)
			return res
		}
		if page.NextCursor > cursor {
			cursor = page.NextCursor
			if err := e.cfg.States.AdvanceCursor(ctx, datasetID, cursor); err != nil {
				res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
				e.fail(ctx, datasetID, retryCount, err)
				return res
			}
		}

		if onProgress != nil && e.cfg.ProgressInterval > 0 &&
			res.ItemsProcessed/e.cfg.ProgressInterval > (res.ItemsProcessed-n)/e.cfg.ProgressInterval {
			onProgress(res.ItemsProcessed, total, datasetID)
		}

		if page.Done {
			break
		}
	}

	// 5. Derive and persist patterns from the fetched results.
	e.extractPatterns(ctx, datasetID, analysis.ExperimentID, collected, &res)

	// 6. Finalize. A dataset with dead-lettered pages stays FAILED so the
	// next run and the rescan worker know it is degraded.
	if pageFailures > 0 {
		e.fail(ctx, datasetID, retryCount, fmt.Errorf("%d pages dead-lettered, last: %w", pageFailures, lastErr))
		return res
	}
	if err := e.cfg.States.Complete(ctx, datasetID, retryCount); err != nil {
		res.Errors = append(res.Errors, e.errorRecord(datasetID, cursor, err))
		return res
	}
	if onProgress != nil {
		onProgress(res.ItemsProcessed, total, datasetID)
	}
	res.Status = domain.SyncStatusComplete
	return res
}

func (e *Engine) extractPatterns(ctx context.Context, datasetID, experimentID string, results []domain.ExperimentResult, res *domain.DatasetSyncResult) {
	if e.cfg.Extractor == nil || len(results) == 0 {
		return
	}
	patterns := e.cfg.Extractor.Extract(results)
	metrics.PatternsExtracted.WithLabelValues(datasetID).Add(float64(len(patterns)))
	if e.cfg.Patterns == nil {
		return
	}
	if err := e.cfg.Patterns.ReplaceForExperiment(ctx, experimentID, patterns); err != nil {
		// Pattern persistence is derived data; record but don't fail the sync.
		res.Errors = append(res.Errors, e.errorRecord(datasetID, 0, fmt.Errorf("failed to persist patterns: %w", err)))
		e.log.Warn("Pattern persistence failed", "dataset", datasetID, "error", err)
	}
}

// deadLetter enqueues a failed page range for the rescan worker.
func (e *Engine) deadLetter(ctx context.Context, datasetID, experimentID string, cursor uint64, cause error) {
	if e.cfg.FailedPages == nil {
		return
	}
	page := &domain.FailedPage{
		ID:           uuid.NewString(),
		DatasetID:    datasetID,
		ExperimentID: experimentID,
		Cursor:       cursor,
		PageSize:     e.cfg.BatchSize,
		FailureType:  classifyFailure(cause),
		Error:        cause.Error(),
		CreatedAt:    uint64(e.now().Unix()),
	}
	if err := e.cfg.FailedPages.Add(ctx, page); err != nil {
		e.log.Error("Failed to dead-letter page",
			"dataset", datasetID, "cursor", cursor, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, datasetID string, retryCount int, cause error) {
	if err := e.cfg.States.Fail(ctx, datasetID, retryCount, cause.Error()); err != nil {
		e.log.Error("Failed to persist failure state", "dataset", datasetID, "error", err)
	}
}

func (e *Engine) errorRecord(datasetID string, cursor uint64, err error) domain.ErrorRecord {
	return domain.ErrorRecord{
		ID:         uuid.NewString(),
		DatasetID:  datasetID,
		Cursor:     cursor,
		Message:    err.Error(),
		OccurredAt: e.now(),
	}
}

func timeoutResult(datasetID string) domain.DatasetSyncResult {
	return domain.DatasetSyncResult{
		DatasetID: datasetID,
		Status:    domain.SyncStatusFailed,
		Errors: []domain.ErrorRecord{{
			ID:         uuid.NewString(),
			DatasetID:  datasetID,
			Message:    ErrBatchTimeout.Error(),
			OccurredAt: time.Now(),
		}},
	}
}

func classifyFailure(err error) domain.FailureType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTypeTimeout
	case remote.ClassifyError(err) == remote.ActionFatal:
		return domain.FailureTypePermanent
	default:
		return domain.FailureTypeRemote
	}
}
