package dispatch

import (
	"context"
	"sync"
)

// FakeProvider is an in-memory DeliveryProvider for tests. Calls is every
// Trigger invocation received, in order, for assertions on rendered
// overrides/payload.
type FakeProvider struct {
	mu     sync.Mutex
	Calls  []FakeCall
	Result TriggerResult
	Err    error
}

// FakeCall records a single Trigger invocation.
type FakeCall struct {
	WorkflowKey string
	Recipients  []string
	Payload     map[string]interface{}
	Overrides   map[string]interface{}
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Result: TriggerResult{Acknowledged: true, TransactionID: "fake-txn"}}
}

func (f *FakeProvider) Trigger(ctx context.Context, workflowKey string, recipients []string, payload, overrides map[string]interface{}) (TriggerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, FakeCall{WorkflowKey: workflowKey, Recipients: recipients, Payload: payload, Overrides: overrides})
	if f.Err != nil {
		return TriggerResult{}, f.Err
	}
	return f.Result, nil
}
