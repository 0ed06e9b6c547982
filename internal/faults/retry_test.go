package faults

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPolicy(delays *[]time.Duration) Policy {
	return Policy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          true,
	}.WithHooks(
		func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		},
		func() float64 { return 0.5 }, // jitter factor fixed at 0.75
	)
}

func TestRetryTransientExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	calls := 0
	wantErr := Transientf("segmentation service unavailable")
	err := p.Retry(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last retryable error", err)
	}
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	// Fixed jitter makes delays deterministic: 1s*0.75, then 2s*0.75.
	if delays[0] != 750*time.Millisecond {
		t.Errorf("first delay = %v, want 750ms", delays[0])
	}
	if delays[1] != 1500*time.Millisecond {
		t.Errorf("second delay = %v, want 1.5s", delays[1])
	}
	if delays[1] < delays[0] {
		t.Errorf("delays decreased: %v then %v", delays[0], delays[1])
	}
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	calls := 0
	err := p.Retry(context.Background(), func(context.Context) error {
		calls++
		return Validationf("unsupported file extension")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if KindOf(err) != KindValidation {
		t.Errorf("kind = %v, want validation", KindOf(err))
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times, want 0", len(delays))
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := testPolicy(nil)

	calls := 0
	err := p.Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Throttlingf("rate limited")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts:     6,
		InitialDelay:    10 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffMultiple: 2.0,
		Jitter:          true,
	}.WithHooks(
		func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
		func() float64 { return 1.0 }, // no jitter reduction
	)

	_ = p.Retry(context.Background(), func(context.Context) error {
		return Transientf("still down")
	})

	for i, d := range delays {
		if d > 30*time.Second {
			t.Errorf("delay[%d] = %v exceeds cap", i, d)
		}
	}
}

func TestRetryWithoutJitterUsesExactBackoff(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		BackoffMultiple: 2.0,
	}.WithHooks(
		func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
		func() float64 { return 0.5 },
	)

	_ = p.Retry(context.Background(), func(context.Context) error {
		return Transientf("still down")
	})

	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	if delays[0] != 1*time.Second || delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want exact 1s then 2s", delays)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		BackoffMultiple: 2.0,
	}.WithHooks(
		func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
		func() float64 { return 0.5 },
	)

	calls := 0
	err := p.Retry(ctx, func(context.Context) error {
		calls++
		return Transientf("flaky")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryValue(t *testing.T) {
	p := testPolicy(nil)

	calls := 0
	got, err := RetryValue(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Transientf("cold start")
		}
		return "mask.nii.gz", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "mask.nii.gz" {
		t.Errorf("got %q", got)
	}
}
