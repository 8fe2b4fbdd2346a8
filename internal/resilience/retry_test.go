package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

func TestRetryerSucceedsWithoutRetryOnNilError(t *testing.T) {
	r := NewRetryer(WithRetryMaxAttempts(3))
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryerRetriesRetryableErrorUntilSuccess(t *testing.T) {
	r := NewRetryer(WithRetryMaxAttempts(5), WithRetryInitialDelay(time.Millisecond), WithRetryJitter(0))
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return engineerrors.New(engineerrors.ErrCodeCatalogUnavailable, "db down")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryerStopsImmediatelyOnNonRetryableError(t *testing.T) {
	r := NewRetryer(WithRetryMaxAttempts(5), WithRetryInitialDelay(time.Millisecond))
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return engineerrors.New(engineerrors.ErrCodeMalformedPayload, "bad payload")
	})

	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable errors must not be retried)", calls)
	}
}

func TestRetryerReturnsRetryErrorAfterExhaustingAttempts(t *testing.T) {
	r := NewRetryer(WithRetryMaxAttempts(3), WithRetryInitialDelay(time.Millisecond), WithRetryJitter(0))
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return engineerrors.New(engineerrors.ErrCodeProviderTransient, "still down")
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *RetryError, got %v (%T)", err, err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", retryErr.Attempts)
	}
}

func TestRetryerRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetryer(WithRetryMaxAttempts(5))
	err := r.Do(ctx, func(ctx context.Context) error {
		t.Fatal("fn must not be called once the context is already cancelled")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestFullJitterBackoffStaysWithinCapAndGrowsWithAttempt(t *testing.T) {
	b := NewFullJitterBackoff(10*time.Millisecond, 40*time.Millisecond)

	for attempt := 0; attempt < 10; attempt++ {
		d := b.NextDelay(attempt)
		if d < 0 || d > 40*time.Millisecond {
			t.Fatalf("NextDelay(%d) = %v, want within [0, 40ms]", attempt, d)
		}
	}
}

func TestFullJitterBackoffCapsAtHighAttempts(t *testing.T) {
	b := NewFullJitterBackoff(time.Second, 4*time.Second)

	// At a high attempt count the exponential ceiling overflows past Cap;
	// NextDelay must still never exceed Cap.
	for i := 0; i < 20; i++ {
		d := b.NextDelay(30)
		if d > 4*time.Second {
			t.Fatalf("NextDelay(30) = %v, want <= 4s", d)
		}
	}
}
