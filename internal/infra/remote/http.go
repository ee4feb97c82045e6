package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// HTTPTransport implements Transport over the remote service's JSON/HTTP API.
type HTTPTransport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPTransport creates an HTTP-based transport.
func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// get performs a GET request and decodes the JSON response into out.
func (t *HTTPTransport) get(ctx context.Context, path string, params url.Values, out any) error {
	u := t.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ProtocolError{Op: path, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

type experimentPayload struct {
	ID          string         `json:"id"`
	DatasetID   string         `json:"dataset_id"`
	ProjectName string         `json:"project_name"`
	CreatedAt   time.Time      `json:"created_at"`
	Repetitions int            `json:"repetitions"`
	Metadata    map[string]any `json:"metadata"`
}

// FetchExperiment retrieves experiment metadata by id.
func (t *HTTPTransport) FetchExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	var payload experimentPayload
	if err := t.get(ctx, "/v1/experiments/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, &ProtocolError{Op: "fetch_experiment", Message: "response missing experiment id"}
	}
	return &domain.Experiment{
		ID:          payload.ID,
		DatasetID:   payload.DatasetID,
		ProjectName: payload.ProjectName,
		CreatedAt:   payload.CreatedAt,
		Repetitions: payload.Repetitions,
		Metadata:    payload.Metadata,
	}, nil
}

type resultsPayload struct {
	Results    []domain.ExperimentResult `json:"results"`
	NextCursor *uint64                   `json:"next_cursor"`
}

// FetchExperimentResults retrieves one page of results starting at cursor.
// A null next_cursor in the response marks the final page.
func (t *HTTPTransport) FetchExperimentResults(ctx context.Context, experimentID string, cursor uint64, pageSize int) (*ResultPage, error) {
	params := url.Values{}
	params.Set("cursor", strconv.FormatUint(cursor, 10))
	params.Set("page_size", strconv.Itoa(pageSize))

	var payload resultsPayload
	path := "/v1/experiments/" + url.PathEscape(experimentID) + "/results"
	if err := t.get(ctx, path, params, &payload); err != nil {
		return nil, err
	}

	page := &ResultPage{Results: payload.Results}
	if payload.NextCursor == nil {
		page.Done = true
		page.NextCursor = cursor + uint64(len(payload.Results))
	} else {
		if *payload.NextCursor < cursor {
			return nil, &ProtocolError{
				Op:      "fetch_experiment_results",
				Message: fmt.Sprintf("next_cursor %d moved backwards from %d", *payload.NextCursor, cursor),
			}
		}
		page.NextCursor = *payload.NextCursor
	}
	return page, nil
}

type datasetPayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Size     int            `json:"size"`
	Metadata map[string]any `json:"metadata"`
}

// ListDatasets retrieves all datasets visible to this client.
func (t *HTTPTransport) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	var payload struct {
		Datasets []datasetPayload `json:"datasets"`
	}
	if err := t.get(ctx, "/v1/datasets", nil, &payload); err != nil {
		return nil, err
	}

	datasets := make([]domain.Dataset, 0, len(payload.Datasets))
	for _, d := range payload.Datasets {
		datasets = append(datasets, domain.Dataset{
			ID:       d.ID,
			Name:     d.Name,
			Size:     d.Size,
			Metadata: d.Metadata,
		})
	}
	return datasets, nil
}

// AnalyzeDataset retrieves the remote aggregate analysis for a dataset.
func (t *HTTPTransport) AnalyzeDataset(ctx context.Context, datasetID string) (*domain.DatasetAnalysis, error) {
	var payload struct {
		DatasetID      string  `json:"dataset_id"`
		ExperimentID   string  `json:"experiment_id"`
		MeanQAScore    float64 `json:"mean_qa_score"`
		MeanRAGScore   float64 `json:"mean_rag_score"`
		ResultCount    int     `json:"result_count"`
		FailureExample string  `json:"failure_example"`
	}
	if err := t.get(ctx, "/v1/datasets/"+url.PathEscape(datasetID)+"/analysis", nil, &payload); err != nil {
		return nil, err
	}
	return &domain.DatasetAnalysis{
		DatasetID:      payload.DatasetID,
		ExperimentID:   payload.ExperimentID,
		MeanQAScore:    payload.MeanQAScore,
		MeanRAGScore:   payload.MeanRAGScore,
		ResultCount:    payload.ResultCount,
		FailureExample: payload.FailureExample,
	}, nil
}

// ExtractPatterns asks the remote service for its derived patterns.
func (t *HTTPTransport) ExtractPatterns(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error) {
	var payload struct {
		Patterns []struct {
			PatternText          string   `json:"pattern_text"`
			ConfidenceScore      float64  `json:"confidence_score"`
			SupportingExampleIDs []string `json:"supporting_example_ids"`
			Category             string   `json:"category"`
		} `json:"patterns"`
	}
	path := "/v1/experiments/" + url.PathEscape(experimentID) + "/patterns"
	if err := t.get(ctx, path, nil, &payload); err != nil {
		return nil, err
	}

	patterns := make([]domain.ExtractedPattern, 0, len(payload.Patterns))
	for _, p := range payload.Patterns {
		patterns = append(patterns, domain.ExtractedPattern{
			PatternText:          p.PatternText,
			ConfidenceScore:      p.ConfidenceScore,
			SupportingExampleIDs: p.SupportingExampleIDs,
			Category:             p.Category,
		})
	}
	return patterns, nil
}
