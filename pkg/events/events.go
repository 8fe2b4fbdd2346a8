// Package events provides the event bus abstraction used for the engine's
// outbound notification-lifecycle side channel (see Dispatch Adapter).
// Publishing on this bus is best-effort observability, never on the
// critical dispatch path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of a notification lifecycle event.
type EventType string

const (
	EventTypeNotificationSent   EventType = "notification.sent"
	EventTypeNotificationFailed EventType = "notification.failed"
)

// Event represents a notification lifecycle event.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	TenantID    string                 `json:"tenant_id"`
	AggregateID string                 `json:"aggregate_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
}

// NewEvent creates a new event.
func NewEvent(eventType EventType, tenantID, aggregateID string, data map[string]interface{}) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		TenantID:    tenantID,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
		Metadata:    make(map[string]string),
	}
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Publisher defines the interface for publishing notification lifecycle
// events. The Dispatch Adapter depends only on this interface, never on the
// concrete RabbitMQ bus, so a failing or absent broker never blocks dispatch.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
