// Package events provides the event bus abstraction used for the engine's
// outbound notification-lifecycle side channel.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xnovu/notification-engine/pkg/logger"
)

// RabbitMQConfig configures the optional notification-lifecycle event bus.
// Unlike the Catalog/Schedule Store/Delivery Provider configuration, this is
// not part of the external interfaces table: a missing or empty URL simply
// means lifecycle events are not published, and dispatch proceeds regardless.
type RabbitMQConfig struct {
	URL               string        `mapstructure:"url"`
	Exchange          string        `mapstructure:"exchange"`
	ExchangeType      string        `mapstructure:"exchange_type"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// RabbitMQEventBus implements Publisher using RabbitMQ.
type RabbitMQEventBus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *RabbitMQConfig
	log     *logger.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewRabbitMQEventBus creates a new RabbitMQ event bus.
func NewRabbitMQEventBus(cfg *RabbitMQConfig, log *logger.Logger) (*RabbitMQEventBus, error) {
	bus := &RabbitMQEventBus{config: cfg, log: log}

	if err := bus.connect(); err != nil {
		return nil, err
	}

	go bus.monitorConnection()

	return bus, nil
}

func (b *RabbitMQEventBus) connect() error {
	conn, err := amqp.Dial(b.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		b.config.Exchange,
		b.config.ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.channel = channel
	b.mu.Unlock()

	b.log.Info().Str("exchange", b.config.Exchange).Msg("connected to RabbitMQ")

	return nil
}

// monitorConnection reconnects with capped exponential backoff on connection loss.
func (b *RabbitMQEventBus) monitorConnection() {
	for {
		b.mu.RLock()
		if b.closed {
			b.mu.RUnlock()
			return
		}
		conn := b.conn
		b.mu.RUnlock()

		if conn == nil {
			time.Sleep(b.config.ReconnectDelay)
			continue
		}

		connClose := conn.NotifyClose(make(chan *amqp.Error))
		err := <-connClose

		if err != nil {
			b.log.Warn().Err(err).Msg("RabbitMQ connection closed")
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		delay := b.config.ReconnectDelay
		for {
			b.mu.RLock()
			if b.closed {
				b.mu.RUnlock()
				return
			}
			b.mu.RUnlock()

			if err := b.connect(); err != nil {
				b.log.Warn().Err(err).Dur("retry_in", delay).Msg("failed to reconnect to RabbitMQ")
				time.Sleep(delay)
				delay *= 2
				if delay > b.config.MaxReconnectDelay {
					delay = b.config.MaxReconnectDelay
				}
				continue
			}
			break
		}
	}
}

// Publish publishes a notification lifecycle event. Errors are the caller's
// to log; per the Dispatch Adapter's contract, a publish failure never fails
// or delays the dispatch it reports on.
func (b *RabbitMQEventBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	channel := b.channel
	b.mu.RUnlock()

	if channel == nil {
		return fmt.Errorf("channel is not available")
	}

	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Headers: amqp.Table{
			"tenant_id":    event.TenantID,
			"aggregate_id": event.AggregateID,
		},
		Body: body,
	}

	if err := channel.PublishWithContext(ctx, b.config.Exchange, string(event.Type), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.log.Debug().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("lifecycle event published")

	return nil
}

// Close closes the event bus connection.
func (b *RabbitMQEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	var errs []error

	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %v", errs)
	}

	return nil
}
