package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit envelopes for destructive and privileged
// chat operations. Publish failures are logged and swallowed.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level      string `json:"level"`
	Text       string `json:"text"`
	Action     string `json:"action,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

// AuditRecord describes one audited action.
type AuditRecord struct {
	Level      string
	Text       string
	Action     string
	Resource   string
	ResourceID int64
	RequestID  string
	UserID     int64
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	var userID *string
	if rec.UserID != 0 {
		id := strconv.FormatInt(rec.UserID, 10)
		userID = &id
	}
	var resourceID string
	if rec.ResourceID != 0 {
		resourceID = strconv.FormatInt(rec.ResourceID, 10)
	}

	slog.InfoContext(ctx, "audit emit", "level", rec.Level, "action", rec.Action, "request_id", rec.RequestID, "user_id", rec.UserID, "text", rec.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:      rec.Level,
			Text:       rec.Text,
			Action:     rec.Action,
			Resource:   rec.Resource,
			ResourceID: resourceID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		slog.WarnContext(ctx, "audit publish failed", "action", rec.Action, "error", err)
	}
}
