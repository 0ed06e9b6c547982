// Package control assembles and runs the scan analysis service.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/scanpipe/scanpipe/internal/core/config"
	"github.com/scanpipe/scanpipe/internal/health"
	"github.com/scanpipe/scanpipe/internal/inference"
	"github.com/scanpipe/scanpipe/internal/infra/objectstore"
	"github.com/scanpipe/scanpipe/internal/infra/queue"
	redisclient "github.com/scanpipe/scanpipe/internal/infra/redis"
	"github.com/scanpipe/scanpipe/internal/infra/storage"
	"github.com/scanpipe/scanpipe/internal/infra/storage/memory"
	"github.com/scanpipe/scanpipe/internal/infra/storage/postgres"
	"github.com/scanpipe/scanpipe/internal/ingest"
	"github.com/scanpipe/scanpipe/internal/notify"
	"github.com/scanpipe/scanpipe/internal/pipeline"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg          *config.AppConfig
	consumer     *queue.Consumer
	ingestor     *ingest.Ingestor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	endpoints    *inference.Endpoints
	log          *slog.Logger

	cancelExec context.CancelFunc
}

// NewApp creates the application with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Storage
	var jobRepo storage.JobRepository
	var resultRepo storage.ResultRepository
	var db *postgres.DB
	var healthComponents []health.Component

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Goose needs the bare *sql.DB that sqlx wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		jobRepo = postgres.NewJobRepo(db)
		resultRepo = postgres.NewResultRepo(db)
		healthComponents = append(healthComponents,
			health.Component{Name: "database", Checker: db, Critical: true})
		log.Info("using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		jobRepo = memory.NewJobRepo(store)
		resultRepo = memory.NewResultRepo(store)
		log.Info("using memory storage")
	}

	// 2. Redis: dedupe claims, failure log, user directory, notifications.
	var redisClient *redisclient.Client
	var dedupe ingest.DedupeClaimer
	var failures pipeline.FailureSink
	var users pipeline.UserLookup
	var notifier notify.Notifier

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		dedupe = redisClient
		failures = redisclient.NewFailureLog(redisClient, 0)
		users = redisClient
		notifier = notify.NewRedisNotifier(redisClient, cfg.Pipeline.NotifyChannel)
		healthComponents = append(healthComponents,
			health.Component{Name: "redis", Checker: redisClient, Critical: false})
	} else {
		dedupe = &localClaimer{claimed: map[string]bool{}}
		failures = &logFailureSink{log: log}
		users = &noUserDirectory{}
		notifier = &logNotifier{log: log}
		log.Info("redis not configured, using in-process fallbacks")
	}

	// 3. Object store and model endpoints
	artifacts, err := objectstore.NewS3Store(cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("failed to init object store: %w", err)
	}
	endpoints := inference.NewEndpoints(cfg.Inference)

	// 4. Pipeline
	pipe := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Jobs:      jobRepo,
		Results:   resultRepo,
		Artifacts: artifacts,
		Segmenter: endpoints,
		Describer: endpoints,
		Enhancer:  endpoints,
		Knowledge: endpoints,
		Notifier:  notifier,
		Users:     users,
		Failures:  failures,
		Logger:    log,
	})

	// 5. Ingest: executions outlive the notification that started them,
	// so they get their own lifetime, cancelled only in Stop.
	execCtx, cancelExec := context.WithCancel(context.Background())
	ingestor := ingest.New(execCtx, cfg.Ingest, jobRepo, dedupe, pipe, log)

	// 6. Queue consumer
	consumer, err := queue.NewConsumer(cfg.Queue, log)
	if err != nil {
		cancelExec()
		return nil, fmt.Errorf("failed to init queue consumer: %w", err)
	}

	healthServer := health.NewServer(health.NewMonitor(healthComponents), cfg.Server.Port)

	return &App{
		cfg:          cfg,
		consumer:     consumer,
		ingestor:     ingestor,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		endpoints:    endpoints,
		log:          log,
		cancelExec:   cancelExec,
	}, nil
}

// Start starts the service and all its components.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go func() {
		if err := a.consumer.Start(ctx, a.ingestor.HandleBatch); err != nil {
			a.log.Error("queue consumer failed", "error", err)
		}
	}()

	a.log.Info("service started", "port", a.cfg.Server.Port)
	return nil
}

// Stop stops the service, letting in-flight executions drain first.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping service...")

	if err := a.consumer.Close(); err != nil {
		a.log.Warn("failed to close queue consumer", "error", err)
	}

	// Wait for dispatched executions, bounded by the caller's deadline.
	done := make(chan struct{})
	go func() {
		a.ingestor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("executions still running at shutdown deadline")
	}
	a.cancelExec()

	if a.endpoints != nil {
		_ = a.endpoints.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

// localClaimer is the in-process dedupe fallback for runs without Redis.
type localClaimer struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (c *localClaimer) ClaimUpload(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

func (c *localClaimer) ReleaseUpload(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, key)
	return nil
}

// logFailureSink writes failure records to the log when no Redis is
// available to keep them.
type logFailureSink struct {
	log *slog.Logger
}

func (s *logFailureSink) Append(ctx context.Context, rec redisclient.FailureRecord) error {
	s.log.Error("execution failure",
		"execution_id", rec.ExecutionID, "job_id", rec.JobID,
		"stage", rec.Stage, "kind", rec.ErrorKind, "error", rec.ErrorMessage)
	return nil
}

type noUserDirectory struct{}

func (noUserDirectory) LookupUser(ctx context.Context, userID string) (string, error) {
	return "", nil
}

// logNotifier prints notifications instead of publishing them.
type logNotifier struct {
	log *slog.Logger
}

func (n *logNotifier) Notify(ctx context.Context, notification notify.Notification) error {
	n.log.Info("notification",
		"job_id", notification.JobID, "status", notification.Status,
		"user", notification.UserID, "message", notification.Message)
	return nil
}
