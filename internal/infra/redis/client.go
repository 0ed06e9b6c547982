package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the analysis pipeline.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func dedupeKey(key string) string {
	return fmt.Sprintf("dedupe:%s", key)
}

func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// ClaimUpload attempts to claim an upload's dedupe key. Returns false
// when another consumer already claimed it. The TTL bounds how long a
// claim shadows re-delivery; the database unique index stays the
// authoritative check.
func (c *Client) ClaimUpload(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, dedupeKey(key), "claimed", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseUpload drops a dedupe claim so a failed dispatch can be redone.
func (c *Client) ReleaseUpload(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, dedupeKey(key)).Err()
}

// LookupUser resolves an upload path owner to a user ID. Missing
// entries resolve to empty, not an error.
func (c *Client) LookupUser(ctx context.Context, userID string) (string, error) {
	val, err := c.rdb.HGet(ctx, userKey(userID), "email").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("hget failed: %w", err)
	}
	return val, nil
}

// Publish sends a notification payload to a channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// RDB exposes the underlying client for repositories built on it.
func (c *Client) RDB() *redis.Client {
	return c.rdb
}
