// Package rabbitmq delivers room, message, websocket lifecycle and audit
// events to a durable topic exchange. Without a broker it degrades to a
// publisher that only logs.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/telemetry"
)

// Publisher publishes an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to amqpURL and declares exchange. An empty URL or any
// connection failure yields the noop publisher.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return fallback("empty amqp url")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return fallback(err.Error())
	}
	p := &amqpPublisher{conn: conn, exchange: exchange}
	if _, err := p.channel(); err != nil {
		_ = conn.Close()
		return fallback(err.Error())
	}

	slog.Info("rabbitmq connected", "exchange", exchange)
	return p
}

func fallback(reason string) Publisher {
	slog.Warn("rabbitmq disabled, using noop", "reason", reason)
	return noopPublisher{reason: reason}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// channel returns the open channel, reopening and redeclaring the exchange
// after the broker closed it (for example on a failed publish).
func (p *amqpPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn.IsClosed() {
		return nil, amqp.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}

	headers := amqp.Table{"routing_key": routingKey}
	for key, value := range observability.HeadersFromContext(ctx) {
		headers[key] = value
	}
	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var chErr error
	if p.ch != nil && !p.ch.IsClosed() {
		chErr = p.ch.Close()
	}
	if p.conn.IsClosed() {
		return chErr
	}
	return errors.Join(chErr, p.conn.Close())
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	attrs := []any{"routing_key", routingKey}
	switch e := event.(type) {
	case models.Event:
		attrs = append(attrs, "event", e.Event, "room_id", e.RoomID)
	case telemetry.AuditEnvelope:
		attrs = append(attrs, "event_type", e.EventType, "action", e.Payload.Action, "request_id", e.RequestID)
	}
	slog.DebugContext(ctx, "rabbitmq noop publish", attrs...)
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode reports "amqp" or "noop" for startup logs.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why p is a noop publisher.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}
