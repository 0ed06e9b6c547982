package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
)

func TestJobRepoCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepo(NewMemoryStorage())

	job := &domain.Job{
		JobID:            "job-1",
		UserID:           "system",
		OriginalImageKey: "uploads/scan.nii",
		DedupeKey:        domain.DedupeKeyFor("mri-uploads", "uploads/scan.nii", "etag-1"),
		Status:           domain.JobStatusUploaded,
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusUploaded {
		t.Errorf("status = %q", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("missing job error = %v, want ErrJobNotFound", err)
	}
}

func TestJobRepoDuplicateDedupeKey(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepo(NewMemoryStorage())

	key := domain.DedupeKeyFor("mri-uploads", "uploads/scan.nii", "etag-1")
	first := &domain.Job{JobID: "job-1", DedupeKey: key, Status: domain.JobStatusUploaded}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &domain.Job{JobID: "job-2", DedupeKey: key, Status: domain.JobStatusUploaded}
	if err := repo.Create(ctx, dup); !errors.Is(err, storage.ErrDuplicateJob) {
		t.Errorf("duplicate create error = %v, want ErrDuplicateJob", err)
	}

	existing, err := repo.GetByDedupeKey(ctx, key)
	if err != nil {
		t.Fatalf("get by dedupe key: %v", err)
	}
	if existing.JobID != "job-1" {
		t.Errorf("dedupe key resolves to %q, want job-1", existing.JobID)
	}
}

func TestJobRepoUpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepo(NewMemoryStorage())

	job := &domain.Job{JobID: "job-1", Status: domain.JobStatusUploaded}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Matching precondition applies.
	err := repo.UpdateStatus(ctx, "job-1", domain.JobStatusUploaded, domain.JobStatusSegmenting, "")
	if err != nil {
		t.Fatalf("cas update: %v", err)
	}

	// Stale precondition is rejected.
	err = repo.UpdateStatus(ctx, "job-1", domain.JobStatusUploaded, domain.JobStatusConverting, "")
	if !errors.Is(err, storage.ErrStatusConflict) {
		t.Errorf("stale cas error = %v, want ErrStatusConflict", err)
	}

	// Failed overrides regardless of the precondition.
	err = repo.UpdateStatus(ctx, "job-1", domain.JobStatusUploaded, domain.JobStatusFailed, "segmentation timed out")
	if err != nil {
		t.Fatalf("fail update: %v", err)
	}
	got, _ := repo.Get(ctx, "job-1")
	if got.Status != domain.JobStatusFailed || got.ErrorMessage != "segmentation timed out" {
		t.Errorf("job after failure = %+v", got)
	}

	// Empty precondition skips the check.
	err = repo.UpdateStatus(ctx, "job-1", "", domain.JobStatusUploaded, "")
	if err != nil {
		t.Fatalf("unconditional update: %v", err)
	}

	err = repo.UpdateStatus(ctx, "missing", "", domain.JobStatusFailed, "x")
	if !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("missing job error = %v, want ErrJobNotFound", err)
	}
}

func TestResultRepoUpsertMergesStages(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepo(NewMemoryStorage())

	err := repo.Upsert(ctx, "job-1", domain.ResultPatch{
		SegmentationKey:  "segmentation-results/job-1/mask.nii.gz",
		ConfidenceScores: map[string]any{"segmentation": 0.92},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	err = repo.Upsert(ctx, "job-1", domain.ResultPatch{
		ImageDescription:  "axial slice with lesion",
		ConfidenceScores:  map[string]any{"vlm": 0.81},
		ProcessingMetrics: map[string]any{"vlm_latency_ms": 420},
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	res, err := repo.GetByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.SegmentationKey == "" || res.ImageDescription == "" {
		t.Errorf("merge dropped a stage: %+v", res)
	}
	if res.ConfidenceScores["segmentation"] != 0.92 || res.ConfidenceScores["vlm"] != 0.81 {
		t.Errorf("confidence scores = %v", res.ConfidenceScores)
	}

	// Re-applying a patch is a no-op.
	if err := repo.Upsert(ctx, "job-1", domain.ResultPatch{ImageDescription: "axial slice with lesion"}); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	again, _ := repo.GetByJob(ctx, "job-1")
	if again.ImageDescription != res.ImageDescription {
		t.Error("repeat upsert changed description")
	}

	if _, err := repo.GetByJob(ctx, "no-such-job"); !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("missing result error = %v, want ErrJobNotFound", err)
	}
}

func TestResultRepoGetByJobCopiesMaps(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepo(NewMemoryStorage())

	err := repo.Upsert(ctx, "job-1", domain.ResultPatch{
		ConfidenceScores:  map[string]any{"segmentation": 0.92},
		ProcessingMetrics: map[string]any{"input_bytes": 1024},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := repo.GetByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.ConfidenceScores["segmentation"] = 0.0
	res.ProcessingMetrics["input_bytes"] = -1

	stored, _ := repo.GetByJob(ctx, "job-1")
	if stored.ConfidenceScores["segmentation"] != 0.92 {
		t.Errorf("caller mutation reached stored confidence scores: %v", stored.ConfidenceScores)
	}
	if stored.ProcessingMetrics["input_bytes"] != 1024 {
		t.Errorf("caller mutation reached stored metrics: %v", stored.ProcessingMetrics)
	}
}
