package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func alwaysSuccessful(err error) bool { return err == nil }

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	for i := 0; i < 10; i++ {
		err := cb.ExecuteWithContext(context.Background(), alwaysSuccessful, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Fatalf("call %d: error = %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 }
	cb := NewCircuitBreaker(cfg)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.ExecuteWithContext(context.Background(), alwaysSuccessful, func(ctx context.Context) error {
			return boom
		})
	}

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open after 3 consecutive failures", cb.State())
	}

	err := cb.ExecuteWithContext(context.Background(), alwaysSuccessful, func(ctx context.Context) error {
		t.Fatal("fn must not run while the breaker is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpensAfterTimeoutAndCloses(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 }
	cfg.Timeout = 5 * time.Millisecond
	cfg.MaxRequests = 1
	cb := NewCircuitBreaker(cfg)

	boom := errors.New("boom")
	_ = cb.ExecuteWithContext(context.Background(), alwaysSuccessful, func(ctx context.Context) error { return boom })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	time.Sleep(10 * time.Millisecond)

	err := cb.ExecuteWithContext(context.Background(), alwaysSuccessful, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("half-open probe: error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed after a successful half-open probe", cb.State())
	}
}

func TestCircuitBreakerIsSuccessfulClassifierIgnoresNonTrippingErrors(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 }
	cb := NewCircuitBreaker(cfg)

	notFound := errors.New("not found")
	isSuccessful := func(err error) bool { return errors.Is(err, notFound) || err == nil }

	for i := 0; i < 5; i++ {
		_ = cb.ExecuteWithContext(context.Background(), isSuccessful, func(ctx context.Context) error {
			return notFound
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed — classifier marked every call successful", cb.State())
	}
}
