package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureRecord captures one failed pipeline execution for later review.
type FailureRecord struct {
	ExecutionID  string    `json:"execution_id"`
	JobID        string    `json:"job_id"`
	Stage        string    `json:"stage"`
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

// FailureLog appends failure records keyed by execution ID.
type FailureLog struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFailureLog creates a Redis-backed failure log. Records expire
// after ttl; zero means 7 days.
func NewFailureLog(client *Client, ttl time.Duration) *FailureLog {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &FailureLog{rdb: client.rdb, ttl: ttl}
}

func failureKey(executionID string) string {
	return fmt.Sprintf("failures:%s", executionID)
}

// Append records a failure for an execution.
func (l *FailureLog) Append(ctx context.Context, rec FailureRecord) error {
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}

	key := failureKey(rec.ExecutionID)
	if err := l.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
		return fmt.Errorf("expire failed: %w", err)
	}
	return nil
}

// Get retrieves all failure records for an execution, oldest first.
func (l *FailureLog) Get(ctx context.Context, executionID string) ([]FailureRecord, error) {
	items, err := l.rdb.LRange(ctx, failureKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	records := make([]FailureRecord, 0, len(items))
	for _, item := range items {
		var rec FailureRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
