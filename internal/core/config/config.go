package config

import (
	"time"

	"github.com/scanpipe/scanpipe/internal/inference"
	"github.com/scanpipe/scanpipe/internal/infra/objectstore"
	"github.com/scanpipe/scanpipe/internal/infra/queue"
	redisclient "github.com/scanpipe/scanpipe/internal/infra/redis"
	"github.com/scanpipe/scanpipe/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
	Queue       queue.Config       `yaml:"queue"`
	ObjectStore objectstore.Config `yaml:"object_store"`
	Inference   inference.Config   `yaml:"inference"`
	Ingest      IngestConfig       `yaml:"ingest"`
	Pipeline    PipelineConfig     `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// IngestConfig holds upload validation settings.
type IngestConfig struct {
	MaxObjectBytes int64         `yaml:"max_object_bytes"`
	DedupeTTL      time.Duration `yaml:"dedupe_ttl"`
}

// PipelineConfig holds workflow execution settings.
type PipelineConfig struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	StageTimeout     time.Duration `yaml:"stage_timeout"`
	StageConcurrency int           `yaml:"stage_concurrency"`
	Retry            RetryConfig   `yaml:"retry"`
	NotifyChannel    string        `yaml:"notify_channel"`
	KnowledgeTopK    int           `yaml:"knowledge_top_k"`
}

// RetryConfig holds the retry policy for model invocations. Jitter is
// a pointer so an explicit `jitter: false` survives defaulting.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
	Jitter          *bool         `yaml:"jitter"`
}

// JitterEnabled reports the jitter setting, defaulting to on.
func (r RetryConfig) JitterEnabled() bool {
	return r.Jitter == nil || *r.Jitter
}
