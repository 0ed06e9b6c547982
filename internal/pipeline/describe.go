package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/inference"
)

// describe runs the image-to-text stage: feed the segmented scan to
// the vision-language model and record its description.
func (p *Pipeline) describe(ctx context.Context, exec *Execution) error {
	result, err := p.results.GetByJob(ctx, exec.JobID)
	if err != nil {
		return fmt.Errorf("load prior results: %w", err)
	}
	if result.SegmentationKey == "" {
		return faults.Validationf("missing segmentation result key for job %s", exec.JobID)
	}

	if err := p.setInProgress(ctx, exec, domain.JobStatusSegmenting, domain.StageVLMProcessing); err != nil {
		return err
	}

	image, err := p.artifacts.Get(ctx, result.SegmentationKey)
	if err != nil {
		return fmt.Errorf("fetch segmented image: %w", err)
	}

	resp, err := faults.RetryValue(ctx, p.retry, func(ctx context.Context) (*inference.DescribeResponse, error) {
		return p.describer.Describe(ctx, inference.DescribeRequest{
			JobID:     exec.JobID,
			ImageData: image,
			Prompt:    inference.DefaultVLMPrompt,
		})
	})
	if err != nil {
		return fmt.Errorf("invoke vision model: %w", err)
	}
	if strings.TrimSpace(resp.TextDescription) == "" {
		return faults.Permanentf("vision model did not return valid text description")
	}

	patch := domain.ResultPatch{
		ImageDescription: resp.TextDescription,
		ConfidenceScores: map[string]any{
			"vlm": resp.Confidence,
		},
		ProcessingMetrics: map[string]any{
			"vlm_model_version":      resp.ModelVersion,
			"vlm_description_length": len(resp.TextDescription),
		},
	}
	if err := p.results.Upsert(ctx, exec.JobID, patch); err != nil {
		return fmt.Errorf("record description result: %w", err)
	}

	p.logger.Info("description complete", "job_id", exec.JobID,
		"description_length", len(resp.TextDescription))
	return nil
}
