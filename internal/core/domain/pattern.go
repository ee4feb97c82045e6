package domain

// ExtractedPattern is a derived, non-authoritative insight aggregated from
// experiment results that passed quality thresholds.
type ExtractedPattern struct {
	PatternText          string
	ConfidenceScore      float64
	SupportingExampleIDs []string
	Category             string
}
