package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RecordingNotifier captures events synchronously for assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
	chans  []string
}

func (n *RecordingNotifier) Notify(_ context.Context, channel string, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chans = append(n.chans, channel)
	n.events = append(n.events, event)
}

// Names returns the recorded event names in order.
func (n *RecordingNotifier) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.events))
	for _, e := range n.events {
		names = append(names, e.Event)
	}
	return names
}

// Last returns the most recent event and its channel.
func (n *RecordingNotifier) Last() (string, models.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return "", models.Event{}, false
	}
	i := len(n.events) - 1
	return n.chans[i], n.events[i], true
}

var _ interface {
	Publish(context.Context, string, any) error
	Close() error
} = (*PublisherMock)(nil)
