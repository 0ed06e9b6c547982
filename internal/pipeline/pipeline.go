// Package pipeline runs the four-stage scan analysis workflow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scanpipe/scanpipe/internal/core/config"
	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/inference"
	"github.com/scanpipe/scanpipe/internal/infra/objectstore"
	redisclient "github.com/scanpipe/scanpipe/internal/infra/redis"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
	"github.com/scanpipe/scanpipe/internal/metrics"
	"github.com/scanpipe/scanpipe/internal/notify"
)

// Execution carries one job through the workflow.
type Execution struct {
	JobID       string
	ExecutionID string
	Bucket      string
	ObjectKey   string
	UserID      string
}

// ExecutionIDFor derives the deterministic execution ID for a job.
func ExecutionIDFor(jobID string) string {
	return "scan-" + jobID
}

// UserLookup resolves user IDs to contact addresses.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (string, error)
}

// FailureSink records failed executions for later review.
type FailureSink interface {
	Append(ctx context.Context, rec redisclient.FailureRecord) error
}

// Pipeline wires the stages to their dependencies and runs executions.
type Pipeline struct {
	jobs      storage.JobRepository
	results   storage.ResultRepository
	artifacts objectstore.Store
	segmenter inference.Segmenter
	describer inference.Describer
	enhancer  inference.Enhancer
	knowledge inference.KnowledgeBase
	notifier  notify.Notifier
	users     UserLookup
	failures  FailureSink
	retry     faults.Policy
	cfg       config.PipelineConfig
	logger    *slog.Logger
	sems      map[domain.Stage]chan struct{}
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Jobs      storage.JobRepository
	Results   storage.ResultRepository
	Artifacts objectstore.Store
	Segmenter inference.Segmenter
	Describer inference.Describer
	Enhancer  inference.Enhancer
	Knowledge inference.KnowledgeBase
	Notifier  notify.Notifier
	Users     UserLookup
	Failures  FailureSink
	Logger    *slog.Logger
}

// New creates a pipeline from configuration and dependencies.
func New(cfg config.PipelineConfig, deps Deps) *Pipeline {
	if cfg.ExecutionTimeout == 0 {
		cfg.ExecutionTimeout = time.Hour
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = 300 * time.Second
	}
	if cfg.StageConcurrency == 0 {
		cfg.StageConcurrency = 10
	}
	if cfg.KnowledgeTopK == 0 {
		cfg.KnowledgeTopK = 3
	}

	sems := make(map[domain.Stage]chan struct{})
	for _, stage := range []domain.Stage{
		domain.StageSegmentation,
		domain.StageVLMProcessing,
		domain.StageLLMEnhancement,
		domain.StageResultsStorage,
	} {
		sems[stage] = make(chan struct{}, cfg.StageConcurrency)
	}

	return &Pipeline{
		jobs:      deps.Jobs,
		results:   deps.Results,
		artifacts: deps.Artifacts,
		segmenter: deps.Segmenter,
		describer: deps.Describer,
		enhancer:  deps.Enhancer,
		knowledge: deps.Knowledge,
		notifier:  deps.Notifier,
		users:     deps.Users,
		failures:  deps.Failures,
		retry: faults.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    cfg.Retry.InitialDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			BackoffMultiple: cfg.Retry.BackoffMultiple,
			Jitter:          cfg.Retry.JitterEnabled(),
		},
		cfg:    cfg,
		logger: deps.Logger,
		sems:   sems,
	}
}

type stageFunc func(ctx context.Context, exec *Execution) error

// Run executes the workflow for one job. Stages run in order; the first
// failure routes through the error handler and ends the execution.
func (p *Pipeline) Run(ctx context.Context, exec *Execution) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ExecutionTimeout)
	defer cancel()

	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	logger := p.logger.With("job_id", exec.JobID, "execution_id", exec.ExecutionID)
	logger.Info("starting execution", "object_key", exec.ObjectKey)

	states := []struct {
		stage domain.Stage
		fn    stageFunc
	}{
		{domain.StageSegmentation, p.segment},
		{domain.StageVLMProcessing, p.describe},
		{domain.StageLLMEnhancement, p.enhance},
		{domain.StageResultsStorage, p.storeAndNotify},
	}

	for _, s := range states {
		if err := p.runStage(ctx, exec, s.stage, s.fn); err != nil {
			p.handleFailure(ctx, exec, s.stage, err)
			metrics.ExecutionsCompleted.WithLabelValues("failed").Inc()
			return fmt.Errorf("stage %s: %w", s.stage, err)
		}
	}

	metrics.ExecutionsCompleted.WithLabelValues("completed").Inc()
	logger.Info("execution completed")
	return nil
}

// runStage enforces the per-stage concurrency cap and timeout around
// one stage invocation.
func (p *Pipeline) runStage(
	ctx context.Context,
	exec *Execution,
	stage domain.Stage,
	fn stageFunc,
) error {
	sem := p.sems[stage]
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return faults.Transientf("waiting for %s slot: %v", stage, ctx.Err())
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(stageCtx, exec)
	metrics.StageLatency.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StageInvocations.WithLabelValues(string(stage), "error").Inc()
		metrics.StageErrors.WithLabelValues(string(stage), string(faults.KindOf(err))).Inc()
		return err
	}
	metrics.StageInvocations.WithLabelValues(string(stage), "success").Inc()
	return nil
}

// setInProgress moves the job into the stage's working status. The
// previous stage's status is the precondition, so a racing duplicate
// execution loses here instead of writing twice.
func (p *Pipeline) setInProgress(ctx context.Context, exec *Execution, from domain.JobStatus, stage domain.Stage) error {
	err := p.jobs.UpdateStatus(ctx, exec.JobID, from, stage.InProgressStatus(), "")
	if err != nil {
		return fmt.Errorf("update status to %s: %w", stage.InProgressStatus(), err)
	}
	return nil
}
