// Package remote provides a resilient client for the remote
// experimentation service.
//
// This package contains:
//   - Transport interface: the raw protocol collaborator
//   - HTTPTransport: JSON-over-HTTP implementation
//   - Client: typed operations gated by circuit breaker + retry
//   - Executor: bounded exponential backoff with jitter
//   - error taxonomy: ErrCircuitOpen, RetryError, ProtocolError
package remote

import (
	"context"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// ResultPage is one page of experiment results plus the resume position.
type ResultPage struct {
	Results    []domain.ExperimentResult
	NextCursor uint64
	Done       bool
}

// Transport is the raw request/response collaborator the client wraps. It
// performs no retries and no breaker bookkeeping; errors it returns must be
// classifiable into transient vs permanent (see ClassifyError).
type Transport interface {
	// FetchExperiment retrieves experiment metadata by id.
	FetchExperiment(ctx context.Context, id string) (*domain.Experiment, error)

	// FetchExperimentResults retrieves one page of results starting at cursor.
	FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*ResultPage, error)

	// ListDatasets retrieves all datasets visible to this client.
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)

	// AnalyzeDataset retrieves the remote aggregate analysis for a dataset.
	AnalyzeDataset(ctx context.Context, datasetID string) (*domain.DatasetAnalysis, error)

	// ExtractPatterns asks the remote service for its derived patterns.
	ExtractPatterns(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error)
}
