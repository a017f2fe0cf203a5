package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/mocks"
	"chat-core/internal/models"
)

func TestDispatcherDeliversToEverySink(t *testing.T) {
	first := new(mocks.PublisherMock)
	second := new(mocks.PublisherMock)
	event := models.NewEvent(models.EventNewMessage, 5, map[string]any{"id": 1}, []int64{1, 2})

	first.On("Publish", mock.Anything, models.ChannelMessageEvents, event).Return(nil).Once()
	second.On("Publish", mock.Anything, models.ChannelMessageEvents, event).Return(assert.AnError).Once()

	d := NewDispatcher(Options{Workers: 1}, Sink{Name: "first", Publisher: first}, Sink{Name: "second", Publisher: second})
	d.Notify(context.Background(), models.ChannelMessageEvents, event)
	require.NoError(t, d.Close(context.Background()))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestDispatcherIgnoresRequestCancellation(t *testing.T) {
	pub := new(mocks.PublisherMock)
	event := models.NewEvent(models.EventRoomCreated, 3, nil, nil)
	pub.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), models.ChannelRoomEvents, event).Return(nil).Once()

	d := NewDispatcher(Options{Workers: 1}, Sink{Name: "pub", Publisher: pub})
	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, models.ChannelRoomEvents, event)
	cancel()
	require.NoError(t, d.Close(context.Background()))

	pub.AssertExpectations(t)
}

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (b *blockingPublisher) Publish(ctx context.Context, _ string, event any) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, event.(models.Event).Event)
	return nil
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, PublishTimeout: time.Second}, Sink{Name: "slow", Publisher: pub})

	d.Notify(context.Background(), models.ChannelRoomEvents, models.NewEvent("first", 1, nil, nil))
	// wait until the worker holds the first event so the queue slot is free
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Notify(context.Background(), models.ChannelRoomEvents, models.NewEvent("second", 1, nil, nil))
		d.Notify(context.Background(), models.ChannelRoomEvents, models.NewEvent("third", 1, nil, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(pub.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"first", "second"}, pub.seen)
}

func TestDispatcherNotifyAfterCloseIsDropped(t *testing.T) {
	pub := new(mocks.PublisherMock)
	d := NewDispatcher(Options{}, Sink{Name: "pub", Publisher: pub})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(context.Background(), models.ChannelRoomEvents, models.NewEvent(models.EventRoomDeleted, 1, nil, nil))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
