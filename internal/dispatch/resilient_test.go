package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestCircuitBreakerProviderPassesThroughOnSuccess(t *testing.T) {
	fake := NewFakeProvider()
	provider := NewCircuitBreakerProvider(fake)

	result, err := provider.Trigger(context.Background(), "wf", []string{"u1"}, nil, nil)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if !result.Acknowledged {
		t.Error("expected the wrapped provider's result to pass through")
	}
}

func TestCircuitBreakerProviderTripsOnRepeatedTransientErrors(t *testing.T) {
	fake := NewFakeProvider()
	fake.Err = &DeliveryError{Class: ErrorProviderTransient, Err: errors.New("timeout")}
	provider := NewCircuitBreakerProvider(fake)

	for i := 0; i < 6; i++ {
		_, _ = provider.Trigger(context.Background(), "wf", nil, nil, nil)
	}

	if provider.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open after repeated transient failures", provider.BreakerState())
	}

	_, err := provider.Trigger(context.Background(), "wf", nil, nil, nil)
	var delivErr *DeliveryError
	if !errors.As(err, &delivErr) {
		t.Fatalf("got %v (%T), want *DeliveryError", err, err)
	}
	if delivErr.Class != ErrorProviderTransient {
		t.Errorf("Class = %v, want ErrorProviderTransient", delivErr.Class)
	}
}

func TestCircuitBreakerProviderDoesNotTripOnPermanentErrors(t *testing.T) {
	fake := NewFakeProvider()
	fake.Err = &DeliveryError{Class: ErrorProviderPermanent, Err: errors.New("rejected")}
	provider := NewCircuitBreakerProvider(fake)

	for i := 0; i < 10; i++ {
		_, _ = provider.Trigger(context.Background(), "wf", nil, nil, nil)
	}

	if provider.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed — permanent errors must not trip the breaker", provider.BreakerState())
	}
}
