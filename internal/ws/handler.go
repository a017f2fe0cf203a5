package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-core/internal/middleware"
	"chat-core/internal/models"
	"chat-core/internal/observability"
)

// TokenVerifier resolves an access token to the caller identity.
type TokenVerifier interface {
	Verify(token string) (models.CurrentUser, error)
}

// LifecyclePublisher receives connect/disconnect/error envelopes. Optional.
type LifecyclePublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

const lifecycleRoutingKey = "ws_events"

// Envelope is the connection lifecycle event shape.
type Envelope struct {
	EventType string         `json:"event_type"`
	EventName string         `json:"event_name"`
	Payload   map[string]any `json:"payload"`
}

// Handler upgrades authenticated clients into the event stream.
type Handler struct {
	hub       *Hub
	verifier  TokenVerifier
	lifecycle LifecyclePublisher
}

// NewHandler constructs a Handler. lifecycle may be nil.
func NewHandler(hub *Hub, verifier TokenVerifier, lifecycle LifecyclePublisher) *Handler {
	return &Handler{hub: hub, verifier: verifier, lifecycle: lifecycle}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and registers the client.
// Clients only receive; anything they send is discarded.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	user, err := h.verifier.Verify(middleware.TokenFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      user.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(user.ID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emit(ctx, "ws_connect", info, "")

	go h.readLoop(context.WithoutCancel(ctx), conn, info)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		if h.hub.RemoveClient(info.UserID, conn) {
			observability.DecWSActive()
		}
		observability.IncWSEvent("ws_disconnect")
		h.emit(ctx, "ws_disconnect", info, closeReason)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.emit(ctx, "ws_error", info, closeReason)
			}
			return
		}
	}
}

func (h *Handler) emit(ctx context.Context, name string, info ConnInfo, reason string) {
	slog.DebugContext(ctx, "websocket lifecycle", "event", name, "conn_id", info.ConnID, "user_id", info.UserID, "reason", reason)
	if h.lifecycle == nil {
		return
	}
	envelope := Envelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]any{
			"ws": map[string]any{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
	if err := h.lifecycle.Publish(ctx, lifecycleRoutingKey, envelope); err != nil {
		slog.WarnContext(ctx, "websocket lifecycle publish failed", "event", name, "error", err)
	}
}
