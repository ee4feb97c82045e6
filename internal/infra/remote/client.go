package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
	"github.com/ndquoc/evalsync/internal/infra/remote/breaker"
	"github.com/ndquoc/evalsync/internal/sync/metrics"
)

// Client wraps each typed remote operation with circuit-breaker gating and
// retry. One Client (and one breaker) is shared by all concurrent callers
// against the same remote dependency, so every caller observes and
// influences the same health state.
type Client struct {
	transport Transport
	breaker   *breaker.Breaker
	executor  *Executor
	log       *slog.Logger
}

// NewClient creates a resilient client over the given transport.
func NewClient(transport Transport, breakerCfg breaker.Config, retryCfg RetryConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		transport: transport,
		breaker:   breaker.New(breakerCfg),
		executor:  NewExecutor(retryCfg),
		log:       log,
	}
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() breaker.State {
	return c.breaker.State()
}

// call runs one typed operation through the breaker + retry protocol:
//
//  1. Breaker allowance is checked before every attempt. The first rejection
//     fails fast with ErrCircuitOpen and never enters the backoff loop.
//  2. Every individual attempt outcome is recorded on the breaker, not just
//     the final one: repeated attempts consume dependency capacity.
//  3. Transient failures are retried by the executor; permanent ones abort.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		metrics.RemoteCallsTotal.WithLabelValues(op, "circuit_open").Inc()
		return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	metrics.BreakerState.Set(float64(c.breaker.State()))

	firstAttempt := true
	err := c.executor.Do(ctx, func(ctx context.Context) error {
		if !firstAttempt && !c.breaker.Allow() {
			return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		firstAttempt = false

		start := time.Now()
		err := fn(ctx)
		latency := time.Since(start)
		metrics.RemoteCallLatency.WithLabelValues(op).Observe(latency.Seconds())

		if err != nil {
			c.breaker.RecordFailure()
			metrics.RemoteCallsTotal.WithLabelValues(op, "error").Inc()
			c.log.Debug("Remote call failed", "operation", op, "latency", latency, "error", err)
			return fmt.Errorf("%s: %w", op, err)
		}
		c.breaker.RecordSuccess()
		metrics.RemoteCallsTotal.WithLabelValues(op, "success").Inc()
		return nil
	})

	metrics.BreakerState.Set(float64(c.breaker.State()))
	return err
}

// FetchExperiment retrieves experiment metadata by id.
func (c *Client) FetchExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	var exp *domain.Experiment
	err := c.call(ctx, "fetch_experiment", func(ctx context.Context) error {
		var err error
		exp, err = c.transport.FetchExperiment(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// FetchExperimentResults retrieves one page of results starting at cursor.
func (c *Client) FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*ResultPage, error) {
	var page *ResultPage
	err := c.call(ctx, "fetch_experiment_results", func(ctx context.Context) error {
		var err error
		page, err = c.transport.FetchExperimentResults(ctx, experimentID, cursor, pageSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ListDatasets retrieves all datasets visible to this client.
func (c *Client) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	var datasets []domain.Dataset
	err := c.call(ctx, "list_datasets", func(ctx context.Context) error {
		var err error
		datasets, err = c.transport.ListDatasets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

// AnalyzeDataset retrieves the remote aggregate analysis for a dataset.
func (c *Client) AnalyzeDataset(ctx context.Context, datasetID string) (*domain.DatasetAnalysis, error) {
	var analysis *domain.DatasetAnalysis
	err := c.call(ctx, "analyze_dataset", func(ctx context.Context) error {
		var err error
		analysis, err = c.transport.AnalyzeDataset(ctx, datasetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// ExtractPatterns asks the remote service for its derived patterns.
func (c *Client) ExtractPatterns(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error) {
	var patterns []domain.ExtractedPattern
	err := c.call(ctx, "extract_patterns", func(ctx context.Context) error {
		var err error
		patterns, err = c.transport.ExtractPatterns(ctx, experimentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patterns, nil
}
