// Package notify delivers job completion and failure notices.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisclient "github.com/scanpipe/scanpipe/internal/infra/redis"
)

// Notification is the payload delivered when a job finishes.
type Notification struct {
	JobID       string    `json:"job_id"`
	ExecutionID string    `json:"execution_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier delivers notifications to interested subscribers.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// RedisNotifier publishes notifications on a Redis channel.
type RedisNotifier struct {
	client  *redisclient.Client
	channel string
}

// NewRedisNotifier creates a pub/sub backed notifier.
func NewRedisNotifier(client *redisclient.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the notification as JSON.
func (n *RedisNotifier) Notify(ctx context.Context, notification Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return n.client.Publish(ctx, n.channel, payload)
}
