// Package extract reduces experiment results into a small set of
// high-confidence patterns. It is pure computation: no I/O, no retries.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// Thresholds controls which results qualify and how many patterns survive.
type Thresholds struct {
	QAThreshold              float64
	RAGThreshold             float64
	ConfidenceThreshold      float64
	MaxPatternsPerExperiment int
}

// GroupFunc assigns a qualifying result to a grouping key. The key doubles
// as the pattern category. The default groups by a normalized prefix of the
// reference output; callers may supply embedding-based clustering instead.
type GroupFunc func(r domain.ExperimentResult) string

// prefixLen bounds the default grouping key length.
const prefixLen = 48

// DefaultGroup groups results by a normalized prefix of their reference output.
func DefaultGroup(r domain.ExperimentResult) string {
	key := strings.ToLower(strings.TrimSpace(r.ReferenceOutput))
	key = strings.Join(strings.Fields(key), " ")
	if len(key) > prefixLen {
		key = key[:prefixLen]
	}
	if key == "" {
		key = "uncategorized"
	}
	return key
}

// Extractor derives patterns from experiment results.
type Extractor struct {
	thresholds Thresholds
	group      GroupFunc
}

// New creates an extractor with the given thresholds and the default
// grouping function.
func New(thresholds Thresholds) *Extractor {
	return NewWithGroup(thresholds, DefaultGroup)
}

// NewWithGroup creates an extractor with a custom grouping function.
func NewWithGroup(thresholds Thresholds, group GroupFunc) *Extractor {
	if group == nil {
		group = DefaultGroup
	}
	return &Extractor{thresholds: thresholds, group: group}
}

type groupAgg struct {
	key        string
	exampleIDs []string
	confidence float64 // running sum until finalized
	firstID    string  // earliest example id, tie-break anchor
}

// Extract filters results by quality thresholds, groups survivors, scores
// each group by mean confidence, and returns at most
// MaxPatternsPerExperiment patterns ordered by descending confidence.
// Ties break toward the group containing the earlier example id.
func (e *Extractor) Extract(results []domain.ExperimentResult) []domain.ExtractedPattern {
	groups := make(map[string]*groupAgg)
	var order []string

	for _, r := range results {
		if r.Scores.QACorrectness < e.thresholds.QAThreshold {
			continue
		}
		if r.Scores.RAGRelevance < e.thresholds.RAGThreshold {
			continue
		}

		key := e.group(r)
		g, ok := groups[key]
		if !ok {
			g = &groupAgg{key: key, firstID: r.ExampleID}
			groups[key] = g
			order = append(order, key)
		}
		g.exampleIDs = append(g.exampleIDs, r.ExampleID)
		g.confidence += r.Scores.Confidence
		if r.ExampleID < g.firstID {
			g.firstID = r.ExampleID
		}
	}

	patterns := make([]domain.ExtractedPattern, 0, len(order))
	for _, key := range order {
		g := groups[key]
		mean := g.confidence / float64(len(g.exampleIDs))
		if mean < e.thresholds.ConfidenceThreshold {
			continue
		}
		patterns = append(patterns, domain.ExtractedPattern{
			PatternText:          fmt.Sprintf("%s (%d supporting examples)", g.key, len(g.exampleIDs)),
			ConfidenceScore:      mean,
			SupportingExampleIDs: g.exampleIDs,
			Category:             g.key,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].ConfidenceScore != patterns[j].ConfidenceScore {
			return patterns[i].ConfidenceScore > patterns[j].ConfidenceScore
		}
		return groups[patterns[i].Category].firstID < groups[patterns[j].Category].firstID
	})

	if e.thresholds.MaxPatternsPerExperiment > 0 && len(patterns) > e.thresholds.MaxPatternsPerExperiment {
		patterns = patterns[:e.thresholds.MaxPatternsPerExperiment]
	}
	return patterns
}
