package events

import (
	"context"
	"testing"
)

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent(EventTypeNotificationSent, "tenant-1", "notif-42", map[string]interface{}{"transaction_id": "tx-1"})

	if e.ID == "" {
		t.Error("expected a generated ID")
	}
	if e.Type != EventTypeNotificationSent {
		t.Errorf("got type %s, want %s", e.Type, EventTypeNotificationSent)
	}
	if e.TenantID != "tenant-1" || e.AggregateID != "notif-42" {
		t.Error("tenant/aggregate id not set correctly")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	e := NewEvent(EventTypeNotificationFailed, "tenant-2", "notif-7", map[string]interface{}{"kind": "ProviderTransient"})
	e.WithMetadata("retry", "1")

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.ID != e.ID || got.Type != e.Type || got.Metadata["retry"] != "1" {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), NewEvent(EventTypeNotificationSent, "t", "a", nil)); err != nil {
		t.Errorf("NoopPublisher.Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("NoopPublisher.Close() error = %v", err)
	}
}
