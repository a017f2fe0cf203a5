package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-core/internal/models"
	"chat-core/internal/observability"
)

const writeWait = 10 * time.Second

// ConnInfo identifies one live socket in logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (cl *client) write(payload []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks live connections per user and delivers events to the
// connections of each event's recipients.
type Hub struct {
	users map[int64]map[*websocket.Conn]*client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{users: make(map[int64]map[*websocket.Conn]*client)}
}

// AddClient registers a connection for a user.
func (h *Hub) AddClient(userID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*websocket.Conn]*client)
	}
	h.users[userID][conn] = &client{conn: conn, info: info}
}

// RemoveClient forgets a connection. It reports whether it was registered.
func (h *Hub) RemoveClient(userID int64, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[conn]; !ok {
		return false
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.users, userID)
	}
	return true
}

// ConnectionCount returns the number of live connections of userID.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish writes a models.Event to every connection of its recipients. A
// failed write drops that connection; the event is still considered
// delivered to the others.
func (h *Hub) Publish(ctx context.Context, routingKey string, event any) error {
	ev, ok := event.(models.Event)
	if !ok {
		return fmt.Errorf("ws hub: unsupported event type %T", event)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	for _, cl := range h.targets(ev.Recipients) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cl.write(payload); err != nil {
			slog.WarnContext(ctx, "websocket write error",
				"conn_id", cl.info.ConnID,
				"user_id", cl.info.UserID,
				"channel", routingKey,
				"event", ev.Event,
				"error", err,
			)
			if h.RemoveClient(cl.info.UserID, cl.conn) {
				observability.DecWSActive()
			}
			_ = cl.conn.Close()
			observability.IncWSEvent("ws_error")
		}
	}
	return nil
}

func (h *Hub) targets(recipients []int64) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	seen := make(map[int64]struct{}, len(recipients))
	for _, userID := range recipients {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for _, cl := range h.users[userID] {
			out = append(out, cl)
		}
	}
	return out
}
