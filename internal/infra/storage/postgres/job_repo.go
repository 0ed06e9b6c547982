package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
)

// JobRepo implements storage.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

// Create inserts a new job record. The unique index on dedupe_key makes
// the database the authoritative duplicate check.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (job_id, user_id, original_image_key, dedupe_key, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		job.JobID,
		job.UserID,
		job.OriginalImageKey,
		job.DedupeKey,
		string(job.Status),
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

type jobRow struct {
	JobID            string    `db:"job_id"`
	UserID           string    `db:"user_id"`
	OriginalImageKey string    `db:"original_image_key"`
	DedupeKey        string    `db:"dedupe_key"`
	Status           string    `db:"status"`
	ErrorMessage     string    `db:"error_message"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (j *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		JobID:            j.JobID,
		UserID:           j.UserID,
		OriginalImageKey: j.OriginalImageKey,
		DedupeKey:        j.DedupeKey,
		Status:           domain.JobStatus(j.Status),
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

const jobColumns = `job_id, user_id, original_image_key, dedupe_key, status, error_message, created_at, updated_at`

// Get retrieves a job by ID.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, jobID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

// GetByDedupeKey retrieves a job by its dedupe key.
func (r *JobRepo) GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE dedupe_key = $1`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, key)
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job by dedupe key: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateStatus transitions a job's status with a compare-and-set on the
// current status. Transitions into failed skip the precondition since a
// failure report must never be lost to a race.
func (r *JobRepo) UpdateStatus(
	ctx context.Context,
	jobID string,
	from, to domain.JobStatus,
	errorMessage string,
) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE job_id = $4 AND ($5 = '' OR status = $5 OR $1 = 'failed')
	`

	res, err := r.db.ExecContext(ctx, query,
		string(to), errorMessage, time.Now().UTC(), jobID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, jobID); err != nil {
			return err
		}
		return storage.ErrStatusConflict
	}
	return nil
}

// List retrieves jobs ordered by creation time, newest first.
func (r *JobRepo) List(
	ctx context.Context,
	status domain.JobStatus,
	limit int,
) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, string(status), limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}
