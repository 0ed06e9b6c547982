package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Ingest.MaxObjectBytes == 0 {
		cfg.Ingest.MaxObjectBytes = 500 * 1024 * 1024
	}
	if cfg.Ingest.DedupeTTL == 0 {
		cfg.Ingest.DedupeTTL = 24 * time.Hour
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Pipeline.ExecutionTimeout == 0 {
		cfg.Pipeline.ExecutionTimeout = time.Hour
	}
	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = 300 * time.Second
	}
	if cfg.Pipeline.StageConcurrency == 0 {
		cfg.Pipeline.StageConcurrency = 10
	}
	if cfg.Pipeline.Retry.MaxAttempts == 0 {
		cfg.Pipeline.Retry.MaxAttempts = 3
	}
	if cfg.Pipeline.Retry.InitialDelay == 0 {
		cfg.Pipeline.Retry.InitialDelay = time.Second
	}
	if cfg.Pipeline.Retry.MaxDelay == 0 {
		cfg.Pipeline.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Pipeline.Retry.BackoffMultiple == 0 {
		cfg.Pipeline.Retry.BackoffMultiple = 2.0
	}
	if cfg.Pipeline.NotifyChannel == "" {
		cfg.Pipeline.NotifyChannel = "scan-results"
	}
	if cfg.Pipeline.KnowledgeTopK == 0 {
		cfg.Pipeline.KnowledgeTopK = 3
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = 300 * time.Second
	}

	return &cfg, nil
}
