package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/notify"
)

// storeAndNotify runs the final stage: verify the accumulated result,
// mark the job completed, and tell the owner.
func (p *Pipeline) storeAndNotify(ctx context.Context, exec *Execution) error {
	if err := p.setInProgress(ctx, exec, domain.JobStatusEnhancing, domain.StageResultsStorage); err != nil {
		return err
	}

	result, err := p.results.GetByJob(ctx, exec.JobID)
	if err != nil {
		return faults.Permanentf("no result recorded for job %s: %v", exec.JobID, err)
	}

	// Integrity check: a missing field is suspicious but not fatal; the
	// earlier stages already validated their own outputs.
	for field, value := range map[string]string{
		"segmentation_key":  result.SegmentationKey,
		"image_description": result.ImageDescription,
		"enhanced_report":   result.EnhancedReport,
	} {
		if strings.TrimSpace(value) == "" {
			p.logger.Warn("result field missing at storage", "job_id", exec.JobID, "field", field)
		}
	}

	// The segmentation artifact must actually exist if the result
	// points at one.
	if result.SegmentationKey != "" {
		if _, err := p.artifacts.Stat(ctx, result.SegmentationKey); err != nil {
			return fmt.Errorf("verify segmentation artifact: %w", err)
		}
	}

	err = p.jobs.UpdateStatus(ctx, exec.JobID, domain.JobStatusStoring, domain.JobStatusCompleted, "")
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	p.notifySuccess(ctx, exec)
	return nil
}

// notifySuccess delivers the completion notice. User lookup and
// delivery are both best effort: a job that finished stays finished
// even when the owner can't be told.
func (p *Pipeline) notifySuccess(ctx context.Context, exec *Execution) {
	user := "unknown"
	if exec.UserID != "" {
		resolved, err := p.users.LookupUser(ctx, exec.UserID)
		if err != nil {
			p.logger.Warn("user lookup failed", "job_id", exec.JobID, "user_id", exec.UserID, "error", err)
		} else if resolved != "" {
			user = resolved
		}
	}

	n := notify.Notification{
		JobID:       exec.JobID,
		ExecutionID: exec.ExecutionID,
		UserID:      user,
		Status:      string(domain.JobStatusCompleted),
		Message:     fmt.Sprintf("Analysis of %s completed", exec.ObjectKey),
		Timestamp:   time.Now().UTC(),
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Warn("completion notification failed", "job_id", exec.JobID, "error", err)
	}
}
