package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	"github.com/ndquoc/evalsync/internal/infra/remote"
	"github.com/ndquoc/evalsync/internal/infra/storage/memory"
	"github.com/ndquoc/evalsync/internal/sync/extract"
)

// fakeRemote serves deterministic result pages per experiment and lets
// tests fail specific page cursors.
type fakeRemote struct {
	mu          sync.Mutex
	total       map[string]int    // experiment id -> result count
	experiments map[string]string // dataset id -> experiment id
	failCursors map[string]map[uint64]error
	fetchCalls  []uint64
	listErr     error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		total:       make(map[string]int),
		experiments: make(map[string]string),
		failCursors: make(map[string]map[uint64]error),
	}
}

func (f *fakeRemote) addDataset(datasetID, experimentID string, resultCount int) {
	f.experiments[datasetID] = experimentID
	f.total[experimentID] = resultCount
}

func (f *fakeRemote) failPage(experimentID string, cursor uint64, err error) {
	if f.failCursors[experimentID] == nil {
		f.failCursors[experimentID] = make(map[uint64]error)
	}
	f.failCursors[experimentID][cursor] = err
}

func (f *fakeRemote) FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*remote.ResultPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, cursor)

	if err, ok := f.failCursors[experimentID][cursor]; ok {
		return nil, err
	}

	total := f.total[experimentID]
	page := &remote.ResultPage{}
	for i := int(cursor); i < total && i < int(cursor)+pageSize; i++ {
		page.Results = append(page.Results, domain.ExperimentResult{
			ExampleID:       fmt.Sprintf("%s-ex-%03d", experimentID, i),
			ReferenceOutput: fmt.Sprintf("answer %d", i),
			Scores:          domain.Scores{QACorrectness: 0.9, RAGRelevance: 0.9, Confidence: 0.9},
		})
	}
	page.NextCursor = cursor + uint64(len(page.Results))
	page.Done = page.NextCursor >= uint64(total)
	return page, nil
}

func (f *fakeRemote) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Dataset
	for id := range f.experiments {
		out = append(out, domain.Dataset{ID: id})
	}
	return out, nil
}

func (f *fakeRemote) AnalyzeDataset(ctx context.Context, datasetID string) (*domain.DatasetAnalysis, error) {
	expID, ok := f.experiments[datasetID]
	if !ok {
		return nil, errors.New("unknown dataset")
	}
	return &domain.DatasetAnalysis{
		DatasetID:    datasetID,
		ExperimentID: expID,
		ResultCount:  f.total[expID],
	}, nil
}

type testFixture struct {
	remote    *fakeRemote
	states    *syncstate.Manager
	stateRepo *memory.SyncStateRepo
	failed    *memory.FailedPageRepo
	patterns  *memory.PatternRepo
	engine    *Engine
}

func newFixture(t *testing.T, tune func(*Config)) *testFixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &testFixture{
		remote:    newFakeRemote(),
		stateRepo: memory.NewSyncStateRepo(store),
		failed:    memory.NewFailedPageRepo(store),
		patterns:  memory.NewPatternRepo(store),
	}
	f.states = syncstate.NewManager(f.stateRepo)
	cfg := Config{
		Client:           f.remote,
		States:           f.states,
		FailedPages:      f.failed,
		Patterns:         f.patterns,
		Extractor:        extract.New(extract.Thresholds{QAThreshold: 0.5, RAGThreshold: 0.5, MaxPatternsPerExperiment: 10}),
		BatchSize:        10,
		ProgressInterval: 10,
		ConcurrentLimit:  2,
		MaxAge:           24 * time.Hour,
	}
	if tune != nil {
		tune(&cfg)
	}
	f.engine = New(cfg)
	return f
}

func TestRun_FullSync(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 25)

	result, err := f.engine.Run(context.Background(), []string{"ds-1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemsProcessed != 25 || result.ItemsFailed != 0 {
		t.Errorf("expected 25 processed / 0 failed, got %d / %d", result.ItemsProcessed, result.ItemsFailed)
	}
	if result.Datasets[0].Status != domain.SyncStatusComplete {
		t.Errorf("expected complete status, got %s", result.Datasets[0].Status)
	}

	st, err := f.states.Get(context.Background(), "ds-1")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if st.Status != domain.SyncStatusComplete {
		t.Errorf("expected persisted complete, got %s", st.Status)
	}
	if st.Cursor != 25 {
		t.Errorf("expected cursor 25, got %d", st.Cursor)
	}
	if st.LastSyncedAt.IsZero() {
		t.Error("expected last_synced_at to be stamped")
	}
}

func TestRun_ResumesFromCursor(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 30)

	// Simulate a prior run that stopped mid-way at cursor 10.
	err := f.stateRepo.Save(context.Background(), &domain.SyncState{
		DatasetID: "ds-1",
		Cursor:    10,
		Status:    domain.SyncStatusFailed,
	})
	if err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	result, err := f.engine.Run(context.Background(), []string{"ds-1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemsProcessed != 20 {
		t.Errorf("expected 20 items (resume from 10), got %d", result.ItemsProcessed)
	}
	if len(f.remote.fetchCalls) == 0 || f.remote.fetchCalls[0] != 10 {
		t.Errorf("expected first fetch at cursor 10, got %v", f.remote.fetchCalls)
	}
}

func TestRun_SkipsFreshDataset(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 30)

	err := f.stateRepo.Save(context.Background(), &domain.SyncState{
		DatasetID:    "ds-1",
		Cursor:       30,
		Status:       domain.SyncStatusComplete,
		LastSyncedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	result, err := f.engine.Run(context.Background(), []string{"ds-1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemsProcessed != 0 {
		t.Errorf("expected no items for a fresh dataset, got %d", result.ItemsProcessed)
	}
	if len(f.remote.fetchCalls) != 0 {
		t.Errorf("expected no remote fetches, got %d", len(f.remote.fetchCalls))
	}
	if result.Datasets[0].Status != domain.SyncStatusComplete {
		t.Errorf("expected complete status for skipped dataset, got %s", result.Datasets[0].Status)
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-a", "exp-a", 20)
	f.remote.addDataset("ds-b", "exp-b", 20)
	// Every page of A fails.
	f.remote.failPage("exp-a", 0, errors.New("connection refused"))
	f.remote.failPage("exp-a", 10, errors.New("connection refused"))

	result, err := f.engine.Run(context.Background(), []string{"ds-a", "ds-b"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, b := result.Datasets[0], result.Datasets[1]
	if a.DatasetID != "ds-a" || b.DatasetID != "ds-b" {
		t.Fatalf("expected caller order preserved, got %s, %s", a.DatasetID, b.DatasetID)
	}
	if a.Status != domain.SyncStatusFailed {
		t.Errorf("expected ds-a failed, got %s", a.Status)
	}
	if len(a.Errors) == 0 {
		t.Error("expected error records for ds-a")
	}
	if b.Status != domain.SyncStatusComplete {
		t.Errorf("expected ds-b complete despite ds-a, got %s", b.Status)
	}
	if b.ItemsProcessed != 20 {
		t.Errorf("expected ds-b fully synced, got %d items", b.ItemsProcessed)
	}

	// Both failed pages dead-lettered for rescan.
	count, err := f.failed.Count(context.Background())
	if err != nil {
		t.Fatalf("failed to count dead letters: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 dead-lettered pages, got %d", count)
	}
}

func TestRun_FailedPageSkipsCursor(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 30)
	f.remote.failPage("exp-1", 10, errors.New("bad gateway"))

	result, err := f.engine.Run(context.Background(), []string{"ds-1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := result.Datasets[0]
	if d.ItemsSucceeded != 20 {
		t.Errorf("expected pages 0 and 20 synced (20 items), got %d", d.ItemsSucceeded)
	}
	if d.ItemsFailed != 10 {
		t.Errorf("expected 10 items failed for the skipped page, got %d", d.ItemsFailed)
	}

	// Cursor reached the end; the dead-lettered page is the resume path.
	st, err := f.states.Get(context.Background(), "ds-1")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if st.Cursor != 30 {
		t.Errorf("expected cursor 30, got %d", st.Cursor)
	}
	if st.Status != domain.SyncStatusFailed {
		t.Errorf("expected failed status with dead letters pending, got %s", st.Status)
	}
	if st.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", st.RetryCount)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 35)

	var mu sync.Mutex
	var calls [][2]int
	onProgress := func(processed, total int, datasetID string) {
		mu.Lock()
		calls = append(calls, [2]int{processed, total})
		mu.Unlock()
	}

	if _, err := f.engine.Run(context.Background(), []string{"ds-1"}, onProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) < 3 {
		t.Fatalf("expected at least 3 progress calls, got %d", len(calls))
	}
	last := calls[len(calls)-1]
	if last[0] != 35 || last[1] != 35 {
		t.Errorf("expected final progress 35/35, got %d/%d", last[0], last[1])
	}
}

func TestRun_BatchTimeout(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.BatchTimeout = time.Minute
		cfg.ConcurrentLimit = 1
	})
	f.remote.addDataset("ds-1", "exp-1", 10)
	f.remote.addDataset("ds-2", "exp-2", 10)

	// Clock jumps past the deadline after the first dataset finishes.
	base := time.Now()
	var calls int
	f.engine.now = func() time.Time {
		calls++
		if calls > 3 {
			return base.Add(2 * time.Minute)
		}
		return base
	}

	result, err := f.engine.Run(context.Background(), []string{"ds-1", "ds-2"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var timedOut int
	for _, d := range result.Datasets {
		if d.Status == domain.SyncStatusFailed {
			for _, rec := range d.Errors {
				if rec.Message == ErrBatchTimeout.Error() {
					timedOut++
				}
			}
		}
	}
	if timedOut == 0 {
		t.Error("expected at least one dataset failed with a timeout error")
	}
}

func TestRun_CancellationPersistsCursor(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 100)

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel after the second page via the progress hook.
	onProgress := func(processed, total int, datasetID string) {
		if processed >= 20 {
			cancel()
		}
	}

	result, err := f.engine.Run(ctx, []string{"ds-1"}, onProgress)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil {
		t.Fatal("expected a partial result on cancellation")
	}
	if result.Datasets[0].Status != domain.SyncStatusFailed {
		t.Errorf("expected failed status on cancellation, got %s", result.Datasets[0].Status)
	}

	st, getErr := f.states.Get(context.Background(), "ds-1")
	if getErr != nil {
		t.Fatalf("failed to load state: %v", getErr)
	}
	if st.Cursor < 20 {
		t.Errorf("expected partial cursor progress preserved, got %d", st.Cursor)
	}
	if st.Status != domain.SyncStatusFailed {
		t.Errorf("expected persisted failed status, got %s", st.Status)
	}
}

func TestRun_PersistsExtractedPatterns(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 5)

	if _, err := f.engine.Run(context.Background(), []string{"ds-1"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patterns, err := f.patterns.GetByExperiment(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("failed to load patterns: %v", err)
	}
	if len(patterns) == 0 {
		t.Error("expected extracted patterns to be persisted")
	}
}

func TestRun_DiscoversDatasetsWhenListEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.addDataset("ds-1", "exp-1", 5)
	f.remote.addDataset("ds-2", "exp-2", 5)

	result, err := f.engine.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Datasets) != 2 {
		t.Errorf("expected 2 discovered datasets, got %d", len(result.Datasets))
	}
	if result.ItemsProcessed != 10 {
		t.Errorf("expected 10 items across discovered datasets, got %d", result.ItemsProcessed)
	}
}
