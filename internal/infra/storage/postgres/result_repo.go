package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
)

// ResultRepo implements storage.ResultRepository using PostgreSQL.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Upsert merges a patch into the job's single result row. Scalar fields
// only overwrite when the patch carries a non-empty value, and the score
// and metric maps merge key-wise, so each stage's write leaves the other
// stages' data intact.
func (r *ResultRepo) Upsert(ctx context.Context, jobID string, patch domain.ResultPatch) error {
	scores, err := marshalMap(patch.ConfidenceScores)
	if err != nil {
		return fmt.Errorf("failed to encode confidence scores: %w", err)
	}
	metrics, err := marshalMap(patch.ProcessingMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode processing metrics: %w", err)
	}

	query := `
		INSERT INTO results (result_id, job_id, segmentation_key, image_description, enhanced_report,
			confidence_scores, processing_metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			segmentation_key = CASE WHEN EXCLUDED.segmentation_key <> ''
				THEN EXCLUDED.segmentation_key ELSE results.segmentation_key END,
			image_description = CASE WHEN EXCLUDED.image_description <> ''
				THEN EXCLUDED.image_description ELSE results.image_description END,
			enhanced_report = CASE WHEN EXCLUDED.enhanced_report <> ''
				THEN EXCLUDED.enhanced_report ELSE results.enhanced_report END,
			confidence_scores = results.confidence_scores || EXCLUDED.confidence_scores,
			processing_metrics = results.processing_metrics || EXCLUDED.processing_metrics,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		uuid.NewString(),
		jobID,
		patch.SegmentationKey,
		patch.ImageDescription,
		patch.EnhancedReport,
		scores,
		metrics,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}
	return nil
}

type resultRow struct {
	ResultID          string    `db:"result_id"`
	JobID             string    `db:"job_id"`
	SegmentationKey   string    `db:"segmentation_key"`
	ImageDescription  string    `db:"image_description"`
	EnhancedReport    string    `db:"enhanced_report"`
	ConfidenceScores  []byte    `db:"confidence_scores"`
	ProcessingMetrics []byte    `db:"processing_metrics"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (row *resultRow) toDomain() (*domain.Result, error) {
	res := &domain.Result{
		ResultID:         row.ResultID,
		JobID:            row.JobID,
		SegmentationKey:  row.SegmentationKey,
		ImageDescription: row.ImageDescription,
		EnhancedReport:   row.EnhancedReport,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if len(row.ConfidenceScores) > 0 {
		if err := json.Unmarshal(row.ConfidenceScores, &res.ConfidenceScores); err != nil {
			return nil, fmt.Errorf("failed to decode confidence scores: %w", err)
		}
	}
	if len(row.ProcessingMetrics) > 0 {
		if err := json.Unmarshal(row.ProcessingMetrics, &res.ProcessingMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode processing metrics: %w", err)
		}
	}
	return res, nil
}

// GetByJob retrieves the result for a job.
func (r *ResultRepo) GetByJob(ctx context.Context, jobID string) (*domain.Result, error) {
	query := `
		SELECT result_id, job_id, segmentation_key, image_description, enhanced_report,
			confidence_scores, processing_metrics, created_at, updated_at
		FROM results
		WHERE job_id = $1
	`

	var row resultRow
	err := r.db.GetContext(ctx, &row, query, jobID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return row.toDomain()
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}
