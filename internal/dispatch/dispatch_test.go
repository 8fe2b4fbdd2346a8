package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/template"
)

// noTemplateSource never resolves an xnovu_render reference; these tests
// exercise variable interpolation and channel sanitization on override
// bodies, not catalog-backed template loading.
type noTemplateSource struct{}

func (noTemplateSource) LoadTemplate(ctx context.Context, key, tenant string) (string, string, bool, error) {
	return "", "", false, nil
}

func TestResolveChannelsPrefersRecordOverWorkflow(t *testing.T) {
	record := &catalog.NotificationRecord{Channels: []catalog.Channel{catalog.ChannelSMS}}
	workflow := &catalog.WorkflowDefinition{DefaultChannels: []catalog.Channel{catalog.ChannelEmail}}

	got := ResolveChannels(record, workflow)
	if len(got) != 1 || got[0] != catalog.ChannelSMS {
		t.Errorf("ResolveChannels() = %v, want [SMS]", got)
	}
}

func TestResolveChannelsFallsBackToWorkflowDefaults(t *testing.T) {
	record := &catalog.NotificationRecord{}
	workflow := &catalog.WorkflowDefinition{DefaultChannels: []catalog.Channel{catalog.ChannelEmail, catalog.ChannelPush}}

	got := ResolveChannels(record, workflow)
	if len(got) != 2 {
		t.Errorf("ResolveChannels() = %v, want 2 default channels", got)
	}
}

func TestDispatchInterpolatesOverridesAndCallsProvider(t *testing.T) {
	provider := NewFakeProvider()
	adapter := NewAdapter(provider, nil)

	record := &catalog.NotificationRecord{
		Payload:    map[string]interface{}{"name": "Ada"},
		Recipients: []string{"u1"},
		Overrides: map[string]interface{}{
			"subject": "Hello {{ name }}",
			"meta":    map[string]interface{}{"greeting": "Hi {{ name }}"},
			"count":   float64(3),
		},
	}
	workflow := &catalog.WorkflowDefinition{WorkflowKey: "welcome"}

	result, err := adapter.Dispatch(context.Background(), record, workflow)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !result.Acknowledged || result.TransactionID != "fake-txn" {
		t.Errorf("Dispatch() result = %+v", result)
	}

	if len(provider.Calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(provider.Calls))
	}
	call := provider.Calls[0]
	if call.WorkflowKey != "welcome" {
		t.Errorf("WorkflowKey = %q, want welcome", call.WorkflowKey)
	}
	if call.Overrides["subject"] != "Hello Ada" {
		t.Errorf("Overrides[subject] = %v, want %q", call.Overrides["subject"], "Hello Ada")
	}
	meta, ok := call.Overrides["meta"].(map[string]interface{})
	if !ok || meta["greeting"] != "Hi Ada" {
		t.Errorf("Overrides[meta] = %v", call.Overrides["meta"])
	}
	if call.Overrides["count"] != float64(3) {
		t.Errorf("Overrides[count] = %v, want 3 (non-string leaf passed through)", call.Overrides["count"])
	}
}

func TestDispatchSanitizesInAppOverrideBodyThroughCache(t *testing.T) {
	provider := NewFakeProvider()
	cache := template.NewCache(noTemplateSource{})
	adapter := NewAdapter(provider, cache)

	record := &catalog.NotificationRecord{
		Channels:   []catalog.Channel{catalog.ChannelInApp},
		Payload:    map[string]interface{}{"name": "Ada"},
		Recipients: []string{"u1"},
		Overrides: map[string]interface{}{
			"in_app": map[string]interface{}{
				"body": "<p>Hi {{ name }}</p><script>alert(1)</script>",
			},
		},
	}

	_, err := adapter.Dispatch(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	call := provider.Calls[0]
	sub, ok := call.Overrides["in_app"].(map[string]interface{})
	if !ok {
		t.Fatalf("Overrides[in_app] = %v, want a map", call.Overrides["in_app"])
	}
	body, _ := sub["body"].(string)
	if strings.Contains(strings.ToLower(body), "<script") {
		t.Errorf("IN_APP override body was not sanitized: %q", body)
	}
	if !strings.Contains(body, "<p>Hi Ada</p>") {
		t.Errorf("IN_APP override body = %q, want interpolated <p>Hi Ada</p>", body)
	}
}

func TestDispatchLeavesOverridesForUnresolvedChannelsAlone(t *testing.T) {
	provider := NewFakeProvider()
	cache := template.NewCache(noTemplateSource{})
	adapter := NewAdapter(provider, cache)

	record := &catalog.NotificationRecord{
		Channels:   []catalog.Channel{catalog.ChannelSMS},
		Payload:    map[string]interface{}{"name": "Ada"},
		Recipients: []string{"u1"},
		Overrides: map[string]interface{}{
			"in_app": map[string]interface{}{
				"body": "<script>alert(1)</script>",
			},
		},
	}

	_, err := adapter.Dispatch(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	call := provider.Calls[0]
	sub, ok := call.Overrides["in_app"].(map[string]interface{})
	if !ok || sub["body"] != "<script>alert(1)</script>" {
		t.Errorf("expected the unresolved channel's override left as plain-interpolated, got %v", call.Overrides["in_app"])
	}
}

func TestDispatchPropagatesProviderError(t *testing.T) {
	provider := NewFakeProvider()
	provider.Err = &DeliveryError{Class: ErrorProviderTransient, Err: errors.New("boom")}
	adapter := NewAdapter(provider, nil)

	_, err := adapter.Dispatch(context.Background(), &catalog.NotificationRecord{Recipients: []string{"u1"}}, nil)
	var delivErr *DeliveryError
	if !errors.As(err, &delivErr) {
		t.Fatalf("expected a *DeliveryError, got %v", err)
	}
	if !delivErr.Retryable() {
		t.Error("expected ProviderTransient to be retryable")
	}
}
