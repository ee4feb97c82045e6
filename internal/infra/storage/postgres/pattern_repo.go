package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ndquoc/evalsync/internal/core/domain"
)

// PatternRepo implements storage.PatternRepository using PostgreSQL.
type PatternRepo struct {
	db *DB
}

// NewPatternRepo creates a new PostgreSQL pattern repository.
func NewPatternRepo(db *DB) *PatternRepo {
	return &PatternRepo{db: db}
}

type patternRow struct {
	ExperimentID    string         `db:"experiment_id"`
	PatternText     string         `db:"pattern_text"`
	ConfidenceScore float64        `db:"confidence_score"`
	ExampleIDs      pq.StringArray `db:"supporting_example_ids"`
	Category        string         `db:"category"`
}

// ReplaceForExperiment replaces all patterns derived from an experiment.
// Patterns are non-authoritative, so a delete-and-insert inside one
// transaction is the simplest correct refresh.
func (r *PatternRepo) ReplaceForExperiment(ctx context.Context, experimentID string, patterns []domain.ExtractedPattern) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM extracted_patterns WHERE experiment_id = $1`, experimentID); err != nil {
		return fmt.Errorf("failed to delete old patterns: %w", err)
	}

	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_patterns (experiment_id, pattern_text, confidence_score, supporting_example_ids, category)
			 VALUES ($1, $2, $3, $4, $5)`,
			experimentID, p.PatternText, p.ConfidenceScore, pq.StringArray(p.SupportingExampleIDs), p.Category); err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patterns: %w", err)
	}
	return nil
}

// GetByExperiment retrieves patterns for an experiment, ordered by confidence.
func (r *PatternRepo) GetByExperiment(ctx context.Context, experimentID string) ([]domain.ExtractedPattern, error) {
	var rows []patternRow
	err := sqlx.SelectContext(ctx, r.db, &rows,
		`SELECT experiment_id, pattern_text, confidence_score, supporting_example_ids, category
		 FROM extracted_patterns WHERE experiment_id = $1
		 ORDER BY confidence_score DESC`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patterns: %w", err)
	}

	patterns := make([]domain.ExtractedPattern, 0, len(rows))
	for _, row := range rows {
		patterns = append(patterns, domain.ExtractedPattern{
			PatternText:          row.PatternText,
			ConfidenceScore:      row.ConfidenceScore,
			SupportingExampleIDs: []string(row.ExampleIDs),
			Category:             row.Category,
		})
	}
	return patterns, nil
}
