package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	redisclient "github.com/scanpipe/scanpipe/internal/infra/redis"
	"github.com/scanpipe/scanpipe/internal/notify"
)

// failureEnvelope is the structured form a stage failure takes when it
// crosses a process boundary. Handlers parse it back instead of
// re-encoding an already encoded cause.
type failureEnvelope struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorKind    string `json:"errorKind,omitempty"`
	Stage        string `json:"stage,omitempty"`
}

// FailureMessage extracts a human-readable message from a stage error.
// It tries the structured envelope first, then the raw cause text.
func FailureMessage(err error) string {
	if err == nil {
		return "Unknown error"
	}

	var fe *faults.Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}

	var env failureEnvelope
	if jsonErr := json.Unmarshal([]byte(err.Error()), &env); jsonErr == nil && env.ErrorMessage != "" {
		return env.ErrorMessage
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

// handleFailure marks the job failed and records the failure. The
// status write comes first so a broken log sink can never hide a
// failed job.
func (p *Pipeline) handleFailure(ctx context.Context, exec *Execution, stage domain.Stage, cause error) {
	// The stage may have failed because the execution deadline expired;
	// the FAILED write and the notifications still have to land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	msg := FailureMessage(cause)
	kind := faults.KindOf(cause)

	logger := p.logger.With("job_id", exec.JobID, "execution_id", exec.ExecutionID, "stage", string(stage))
	logger.Error("execution failed", "kind", string(kind), "error", msg)

	// Failed overrides whatever state the job raced into.
	if err := p.jobs.UpdateStatus(ctx, exec.JobID, "", domain.JobStatusFailed, msg); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}

	rec := redisclient.FailureRecord{
		ExecutionID:  exec.ExecutionID,
		JobID:        exec.JobID,
		Stage:        string(stage),
		ErrorKind:    string(kind),
		ErrorMessage: msg,
		FailedAt:     time.Now().UTC(),
	}
	if err := p.failures.Append(ctx, rec); err != nil {
		logger.Warn("failure log append failed", "error", err)
	}

	n := notify.Notification{
		JobID:       exec.JobID,
		ExecutionID: exec.ExecutionID,
		UserID:      exec.UserID,
		Status:      string(domain.JobStatusFailed),
		Message:     fmt.Sprintf("Analysis of %s failed: %s", exec.ObjectKey, msg),
		Timestamp:   time.Now().UTC(),
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		logger.Warn("failure notification failed", "error", err)
	}
}
