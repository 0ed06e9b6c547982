package storage

import (
	"context"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
)

// Sentinel errors carry a permanent classification so callers never
// retry a not-found or constraint condition.
var (
	// ErrJobNotFound is returned when a job doesn't exist
	ErrJobNotFound = faults.New(faults.KindPermanent, "", "job not found", nil)

	// ErrDuplicateJob is returned when a job with the same dedupe key already exists
	ErrDuplicateJob = faults.New(faults.KindPermanent, "", "duplicate job", nil)

	// ErrStatusConflict is returned when a status update's precondition fails
	ErrStatusConflict = faults.New(faults.KindPermanent, "", "job status conflict", nil)
)

// JobRepository handles job record storage operations
type JobRepository interface {
	// Create inserts a new job. Returns ErrDuplicateJob if a job with
	// the same dedupe key already exists.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// GetByDedupeKey retrieves a job by its dedupe key
	GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error)

	// UpdateStatus transitions a job's status. When from is non-empty the
	// update only applies if the current status matches; a failed target
	// always applies. Returns ErrStatusConflict when the precondition
	// does not hold.
	UpdateStatus(ctx context.Context, jobID string, from, to domain.JobStatus, errorMessage string) error

	// List retrieves jobs, newest first, optionally filtered by status
	List(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error)
}

// ResultRepository handles analysis result storage operations
type ResultRepository interface {
	// Upsert merges a patch into the job's single result row, creating
	// it on first write. Re-applying the same patch is a no-op.
	Upsert(ctx context.Context, jobID string, patch domain.ResultPatch) error

	// GetByJob retrieves the result for a job
	GetByJob(ctx context.Context, jobID string) (*domain.Result, error)
}
