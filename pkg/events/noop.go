package events

import "context"

// NoopPublisher discards every event. Used when no RabbitMQ URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
