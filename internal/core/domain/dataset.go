package domain

// Dataset is a remote dataset summary.
type Dataset struct {
	ID       string
	Name     string
	Size     int
	Metadata map[string]any
}

// DatasetAnalysis is the remote service's aggregate view of a dataset.
type DatasetAnalysis struct {
	DatasetID      string
	ExperimentID   string
	MeanQAScore    float64
	MeanRAGScore   float64
	ResultCount    int
	FailureExample string
}
