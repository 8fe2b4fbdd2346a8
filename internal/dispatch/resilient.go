package dispatch

import (
	"context"
	"errors"

	"github.com/xnovu/notification-engine/internal/resilience"
)

// CircuitBreakerProvider wraps a DeliveryProvider with a circuit breaker
// (SPEC_FULL §7/§4.4), tripping on a run of ErrorProviderTransient failures
// — the same class the activity retry policy treats as retryable — so a
// downed Delivery Provider fails fast instead of every dispatch blocking
// on its own HTTP timeout.
type CircuitBreakerProvider struct {
	provider DeliveryProvider
	cb       *resilience.CircuitBreaker
}

// NewCircuitBreakerProvider wraps provider with a breaker named "delivery-provider".
func NewCircuitBreakerProvider(provider DeliveryProvider) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: provider,
		cb:       resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("delivery-provider")),
	}
}

// isDeliverySuccess only counts ErrorProviderTransient as a breaker
// failure; a permanent/malformed-payload error means the provider
// answered, it just rejected the call.
func isDeliverySuccess(err error) bool {
	var delivErr *DeliveryError
	if errors.As(err, &delivErr) {
		return delivErr.Class != ErrorProviderTransient
	}
	return err == nil
}

// Trigger runs the wrapped provider's Trigger through the circuit breaker.
func (p *CircuitBreakerProvider) Trigger(ctx context.Context, workflowKey string, recipients []string, payload map[string]interface{}, overrides map[string]interface{}) (TriggerResult, error) {
	var result TriggerResult
	err := p.cb.ExecuteWithContext(ctx, isDeliverySuccess, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = p.provider.Trigger(ctx, workflowKey, recipients, payload, overrides)
		return innerErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderTransient, Err: err}
	}
	return result, err
}

// BreakerState reports the delivery-provider breaker's current state,
// surfaced on the Engine Controller's status endpoint.
func (p *CircuitBreakerProvider) BreakerState() string {
	return p.cb.State().String()
}
