// Package events fans committed room and message mutations out to the
// configured transports. Delivery is best effort: Notify never blocks the
// caller and sink failures are only logged and counted.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-core/internal/models"
	"chat-core/internal/observability"
)

const (
	DefaultQueueSize      = 1024
	DefaultWorkers        = 4
	DefaultPublishTimeout = 5 * time.Second
)

// Publisher is a transport events are handed to. The routing key is the
// logical channel (room_events or message_events).
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Sink names a Publisher for logs and metrics.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Options tunes the dispatcher. Zero values select the defaults.
type Options struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

type job struct {
	ctx     context.Context
	channel string
	event   models.Event
}

// Dispatcher queues events and delivers each one to every sink from a small
// worker pool.
type Dispatcher struct {
	sinks   []Sink
	queue   chan job
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers. Call Close to drain them.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, opts.QueueSize),
		timeout: opts.PublishTimeout,
		logger:  opts.Logger.With("component", "events"),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Notify enqueues event for delivery on channel. The request context only
// contributes its values; its cancellation does not abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, channel string, event models.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), channel: channel, event: event}:
	default:
		d.drop(event, "queue full")
	}
}

func (d *Dispatcher) drop(event models.Event, reason string) {
	observability.IncEventDropped(event.Event)
	d.logger.Warn("event dropped", "event", event.Event, "room_id", event.RoomID, "reason", reason)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
		err := sink.Publisher.Publish(ctx, j.channel, j.event)
		cancel()
		if err != nil {
			observability.IncEventPublished(sink.Name, j.event.Event, "error")
			d.logger.Warn("event publish failed",
				"sink", sink.Name,
				"channel", j.channel,
				"event", j.event.Event,
				"room_id", j.event.RoomID,
				"request_id", observability.RequestIDFromContext(j.ctx),
				"error", err,
			)
			continue
		}
		observability.IncEventPublished(sink.Name, j.event.Event, "ok")
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, models.Event) {}
