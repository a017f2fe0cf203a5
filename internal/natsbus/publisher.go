// Package natsbus publishes chat events to NATS subjects named after the
// event channel.
package natsbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"chat-core/internal/observability"
)

// Publisher is a NATS core publisher.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url. Subjects are prefix + routing key.
func Connect(url, name, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	slog.Info("nats connected", "url", nc.ConnectedUrl())
	return New(nc, prefix), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the subject routingKey is published on.
func (p *Publisher) Subject(routingKey string) string {
	return p.prefix + routingKey
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.Subject(routingKey))
	msg.Data = data
	for key, value := range observability.HeadersFromContext(ctx) {
		msg.Header.Set(key, value)
	}
	return p.nc.PublishMsg(msg)
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
