package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/inference"
)

// segmentationKeyFor builds the artifact key for a segmentation mask.
func segmentationKeyFor(jobID string, now time.Time) string {
	return fmt.Sprintf("segmentation-results/%s/%s-segmentation.nii.gz",
		jobID, now.UTC().Format("20060102-150405"))
}

// segment runs the image segmentation stage: fetch the uploaded scan,
// invoke the segmentation model, store the mask, and record the result.
func (p *Pipeline) segment(ctx context.Context, exec *Execution) error {
	if exec.ObjectKey == "" {
		return faults.Validationf("missing object key for job %s", exec.JobID)
	}

	if err := p.setInProgress(ctx, exec, domain.JobStatusUploaded, domain.StageSegmentation); err != nil {
		return err
	}

	image, err := p.artifacts.Get(ctx, exec.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch scan: %w", err)
	}

	resp, err := faults.RetryValue(ctx, p.retry, func(ctx context.Context) (*inference.SegmentResponse, error) {
		return p.segmenter.Segment(ctx, inference.SegmentRequest{
			JobID:     exec.JobID,
			ImageData: image,
		})
	})
	if err != nil {
		return fmt.Errorf("invoke segmentation model: %w", err)
	}
	if len(resp.SegmentationData) == 0 {
		return faults.Permanentf("segmentation model did not return segmentation data")
	}

	segKey := segmentationKeyFor(exec.JobID, time.Now())
	if err := p.artifacts.Put(ctx, segKey, resp.SegmentationData, "application/gzip"); err != nil {
		return fmt.Errorf("store segmentation mask: %w", err)
	}

	patch := domain.ResultPatch{
		SegmentationKey: segKey,
		ConfidenceScores: map[string]any{
			"segmentation": resp.Confidence,
		},
		ProcessingMetrics: map[string]any{
			"segmentation_model_version": resp.ModelVersion,
			"segmentation_input_bytes":   len(image),
		},
	}
	if err := p.results.Upsert(ctx, exec.JobID, patch); err != nil {
		return fmt.Errorf("record segmentation result: %w", err)
	}

	p.logger.Info("segmentation complete", "job_id", exec.JobID, "segmentation_key", segKey)
	return nil
}
