package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/middleware"
	"chat-core/internal/models"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient(1, nil, ConnInfo{UserID: 1})
	assert.Equal(t, 1, hub.ConnectionCount(1))

	assert.True(t, hub.RemoveClient(1, nil))
	assert.Equal(t, 0, hub.ConnectionCount(1))
	assert.False(t, hub.RemoveClient(1, nil))
	assert.Empty(t, hub.users)
}

func TestHubRejectsForeignEvents(t *testing.T) {
	err := NewHub().Publish(context.Background(), "room_events", map[string]string{"event": "x"})
	assert.Error(t, err)
}

type recordingLifecycle struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingLifecycle) Publish(_ context.Context, _ string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, event.(Envelope).EventName)
	return nil
}

func (r *recordingLifecycle) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestHandlerDeliversEventsToRecipients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := middleware.NewTokenVerifier("secret")
	hub := NewHub()
	lifecycle := &recordingLifecycle{}
	r := gin.New()
	r.GET("/ws", NewHandler(hub, verifier, lifecycle).Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token="
	dial := func(userID int64) *websocket.Conn {
		token, err := verifier.Sign(models.CurrentUser{ID: userID}, time.Minute)
		require.NoError(t, err)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
		require.NoError(t, err)
		return conn
	}

	alice := dial(1)
	defer alice.Close()
	bob := dial(2)
	defer bob.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(1) == 1 && hub.ConnectionCount(2) == 1
	}, time.Second, 10*time.Millisecond)

	event := models.NewEvent(models.EventNewMessage, 5, map[string]any{"content": "hi"}, []int64{1, 1, 3})
	require.NoError(t, hub.Publish(context.Background(), models.ChannelMessageEvents, event))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := alice.ReadMessage()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "new_message", got["event"])
	assert.Equal(t, "5", got["roomId"])
	assert.NotContains(t, got, "Recipients")

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "non-recipients receive nothing")

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return hub.ConnectionCount(1) == 0 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, name := range lifecycle.seen() {
			if name == "ws_disconnect" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ws_connect", lifecycle.seen()[0])
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewHandler(NewHub(), middleware.NewTokenVerifier("secret"), nil).Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
