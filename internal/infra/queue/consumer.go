// Package queue consumes upload notifications from RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scanpipe/scanpipe/internal/faults"
)

// Config holds RabbitMQ connection configuration.
type Config struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	Queue      string `yaml:"queue"`
	BatchSize  int    `yaml:"batch_size"`
}

// BatchHandler processes a batch of message bodies and returns one
// error slot per body. Nil means handled; a retryable error puts the
// message back on the queue; anything else drops it.
type BatchHandler func(ctx context.Context, bodies [][]byte) []error

// Consumer reads upload notifications and hands them to a batch handler.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	batchSize int
	flushWait time.Duration
	logger    *slog.Logger
}

// NewConsumer connects to RabbitMQ and declares the notification queue.
func NewConsumer(cfg Config, logger *slog.Logger) (*Consumer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}
	if err := ch.Qos(cfg.BatchSize, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return &Consumer{
		conn:      conn,
		channel:   ch,
		queue:     cfg.Queue,
		batchSize: cfg.BatchSize,
		flushWait: time.Second,
		logger:    logger,
	}, nil
}

// Start consumes deliveries until the context is cancelled. Deliveries
// collect into batches of up to the configured size, flushing after a
// short wait so a slow trickle never stalls.
func (c *Consumer) Start(ctx context.Context, handle BatchHandler) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	batch := make([]amqp.Delivery, 0, c.batchSize)
	timer := time.NewTimer(c.flushWait)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.dispatch(ctx, handle, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			c.logger.Info("queue consumer shutting down")
			return nil
		case <-timer.C:
			flush()
			timer.Reset(c.flushWait)
		case msg, ok := <-msgs:
			if !ok {
				flush()
				return fmt.Errorf("rabbitmq channel closed")
			}
			batch = append(batch, msg)
			if len(batch) >= c.batchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(c.flushWait)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, handle BatchHandler, batch []amqp.Delivery) {
	bodies := make([][]byte, len(batch))
	for i := range batch {
		bodies[i] = batch[i].Body
	}

	errs := handle(ctx, bodies)
	for i, msg := range batch {
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		switch {
		case err == nil:
			if ackErr := msg.Ack(false); ackErr != nil {
				c.logger.Error("failed to ack message", "error", ackErr)
			}
		case faults.Retryable(err):
			if nackErr := msg.Nack(false, true); nackErr != nil {
				c.logger.Error("failed to requeue message", "error", nackErr)
			}
		default:
			// Permanent failures are dropped so they don't loop forever.
			if ackErr := msg.Ack(false); ackErr != nil {
				c.logger.Error("failed to ack message", "error", ackErr)
			}
		}
	}
}

// Close shuts down the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}
