// Package ingest turns upload notifications into analysis jobs.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanpipe/scanpipe/internal/core/config"
	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
	"github.com/scanpipe/scanpipe/internal/metrics"
	"github.com/scanpipe/scanpipe/internal/pipeline"
)

var allowedExtensions = []string{".nii.gz", ".nii", ".dcm"}

// Runner executes the analysis workflow for a job.
type Runner interface {
	Run(ctx context.Context, exec *pipeline.Execution) error
}

// DedupeClaimer is the fast-path duplicate filter in front of the
// database unique index.
type DedupeClaimer interface {
	ClaimUpload(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseUpload(ctx context.Context, key string) error
}

// Outcome reports how one notification in a batch was handled.
type Outcome struct {
	Success     bool
	Duplicate   bool
	JobID       string
	ExecutionID string
	ObjectKey   string
	Err         error
}

// Ingestor validates upload notifications, creates jobs, and launches
// pipeline executions.
type Ingestor struct {
	jobs   storage.JobRepository
	dedupe DedupeClaimer
	runner Runner
	cfg    config.IngestConfig
	logger *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

// New creates an ingestor. baseCtx bounds the lifetime of dispatched
// executions, which outlive the notification that started them.
func New(
	baseCtx context.Context,
	cfg config.IngestConfig,
	jobs storage.JobRepository,
	dedupe DedupeClaimer,
	runner Runner,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		jobs:    jobs,
		dedupe:  dedupe,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// HandleBatch processes a batch of notification bodies independently
// and returns one disposition per body for the queue consumer.
func (in *Ingestor) HandleBatch(ctx context.Context, bodies [][]byte) []error {
	errs := make([]error, len(bodies))
	var created, duplicates, failed int

	for i, body := range bodies {
		outcome := in.handleOne(ctx, body)
		switch {
		case outcome.Success:
			created++
			metrics.UploadsProcessed.WithLabelValues("created").Inc()
		case outcome.Duplicate:
			duplicates++
			metrics.UploadsProcessed.WithLabelValues("duplicate").Inc()
		default:
			failed++
			metrics.UploadsProcessed.WithLabelValues("failed").Inc()
			errs[i] = outcome.Err
		}
	}

	in.logger.Info("batch processed",
		"total", len(bodies), "created", created, "duplicates", duplicates, "failed", failed)
	return errs
}

// handleOne validates one notification and dispatches an execution.
func (in *Ingestor) handleOne(ctx context.Context, body []byte) Outcome {
	event, err := domain.ParseUploadEvent(body)
	if err != nil {
		in.logger.Warn("malformed upload notification", "error", err)
		return Outcome{Err: faults.Validationf("malformed payload: %v", err)}
	}

	if err := in.validate(event); err != nil {
		in.logger.Warn("rejected upload", "object_key", event.ObjectKey, "error", err)
		return Outcome{ObjectKey: event.ObjectKey, Err: err}
	}

	dedupeKey := domain.DedupeKeyFor(event.Bucket, event.ObjectKey, event.ETag)
	claimed, err := in.dedupe.ClaimUpload(ctx, dedupeKey, in.cfg.DedupeTTL)
	if err != nil {
		// Redis being down is not a reason to drop uploads; the unique
		// index below still catches duplicates.
		in.logger.Warn("dedupe claim failed, falling back to database", "error", err)
	} else if !claimed {
		in.logger.Info("duplicate upload skipped", "object_key", event.ObjectKey)
		return Outcome{Duplicate: true, ObjectKey: event.ObjectKey}
	}

	job := &domain.Job{
		JobID:            uuid.NewString(),
		UserID:           userFromKey(event.ObjectKey),
		OriginalImageKey: event.ObjectKey,
		DedupeKey:        dedupeKey,
		Status:           domain.JobStatusUploaded,
	}
	if err := in.jobs.Create(ctx, job); err != nil {
		if err == storage.ErrDuplicateJob {
			in.logger.Info("duplicate upload skipped", "object_key", event.ObjectKey)
			return Outcome{Duplicate: true, ObjectKey: event.ObjectKey}
		}
		// The claim must not shadow this upload while the database is
		// unavailable, or the redelivery would be treated as a dupe.
		if releaseErr := in.dedupe.ReleaseUpload(ctx, dedupeKey); releaseErr != nil {
			in.logger.Warn("failed to release dedupe claim", "error", releaseErr)
		}
		return Outcome{ObjectKey: event.ObjectKey,
			Err: faults.Transientf("create job: %v", err)}
	}
	metrics.JobsCreated.Inc()

	exec := &pipeline.Execution{
		JobID:       job.JobID,
		ExecutionID: pipeline.ExecutionIDFor(job.JobID),
		Bucket:      event.Bucket,
		ObjectKey:   event.ObjectKey,
		UserID:      job.UserID,
	}

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		if err := in.runner.Run(in.baseCtx, exec); err != nil {
			in.logger.Error("execution failed", "job_id", exec.JobID, "error", err)
		}
	}()

	in.logger.Info("job created", "job_id", job.JobID,
		"execution_id", exec.ExecutionID, "object_key", event.ObjectKey)
	return Outcome{Success: true, JobID: job.JobID,
		ExecutionID: exec.ExecutionID, ObjectKey: event.ObjectKey}
}

// validate applies the upload acceptance rules.
func (in *Ingestor) validate(event *domain.UploadEvent) error {
	if event.ObjectSize <= 0 {
		return faults.Validationf("object %s has invalid size %d", event.ObjectKey, event.ObjectSize)
	}
	if in.cfg.MaxObjectBytes > 0 && event.ObjectSize > in.cfg.MaxObjectBytes {
		return faults.Validationf("object %s exceeds size limit: %d > %d",
			event.ObjectKey, event.ObjectSize, in.cfg.MaxObjectBytes)
	}

	key := strings.ToLower(event.ObjectKey)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(key, ext) {
			return nil
		}
	}
	return faults.Validationf("object %s has unsupported extension", event.ObjectKey)
}

// userFromKey derives the owning user from an upload path of the form
// uploads/<user>/<file>. Anything else belongs to "system".
func userFromKey(objectKey string) string {
	parts := strings.Split(objectKey, "/")
	if len(parts) >= 3 && parts[0] == "uploads" && parts[1] != "" {
		return parts[1]
	}
	return "system"
}

// Wait blocks until all dispatched executions have finished.
func (in *Ingestor) Wait() {
	in.wg.Wait()
}
