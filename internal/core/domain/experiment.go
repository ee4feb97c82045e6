package domain

import "time"

// Experiment is a remote experiment run over a dataset.
// Fetched read-only; never mutated locally.
type Experiment struct {
	ID          string
	DatasetID   string
	ProjectName string
	CreatedAt   time.Time
	Repetitions int
	Metadata    map[string]any
}

// Scores holds the evaluation scores attached to a single result.
type Scores struct {
	QACorrectness float64 `json:"qa_correctness"`
	RAGRelevance  float64 `json:"rag_relevance"`
	Confidence    float64 `json:"confidence"`
}

// Document is one retrieved context chunk attached to a result.
type Document struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ExperimentResult is one evaluated example within an experiment.
// Immutable once fetched; identified by example + repetition.
type ExperimentResult struct {
	ExampleID        string     `json:"example_id"`
	RepetitionNumber int        `json:"repetition_number"`
	Input            string     `json:"input"`
	ReferenceOutput  string     `json:"reference_output"`
	Scores           Scores     `json:"scores"`
	RetrievedContext []Document `json:"retrieved_context"`
	LatencyMS        float64    `json:"latency_ms"`
	TraceID          string     `json:"trace_id"`
}
