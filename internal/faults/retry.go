package faults

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy defines retry behavior for a single operation.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Jitter          bool

	// Test hooks. Nil means time.Sleep honoring ctx and rand.Float64.
	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          true,
}

// WithHooks returns a copy of the policy with the sleep and rand
// functions replaced, for deterministic tests.
func (p Policy) WithHooks(sleep func(ctx context.Context, d time.Duration) error, randF func() float64) Policy {
	p.sleep = sleep
	p.randF = randF
	return p
}

// Retry runs fn until it succeeds, fails with a non-retryable error,
// or exhausts the attempt budget. On exhaustion the last retryable
// error is returned unchanged so its classification survives.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.BackoffMultiple <= 0 {
		p.BackoffMultiple = DefaultPolicy.BackoffMultiple
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		if err := p.doSleep(ctx, p.backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Retry(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// backoff computes the delay before the given attempt's retry. When
// jitter is enabled the exponential delay is scaled by a uniform
// factor in [0.5, 1.0).
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiple, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if !p.Jitter {
		return time.Duration(delay)
	}
	r := rand.Float64
	if p.randF != nil {
		r = p.randF
	}
	return time.Duration(delay * (0.5 + r()/2))
}

func (p Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
