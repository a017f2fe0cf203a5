// Package services holds the room and message use cases. Every operation
// validates and authorizes before touching the store, and publishes its
// event only after the store call returned successfully.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

// UserDirectory is the identity subsystem as seen by the chat core.
type UserDirectory interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error)
}

// Notifier receives events after a committed mutation. Implementations
// must not block and must not report failures.
type Notifier interface {
	Notify(ctx context.Context, channel string, event models.Event)
}

// roomSnapshot is the room payload carried by room events. It holds no
// per-viewer fields.
type roomSnapshot struct {
	ID             int64            `json:"id"`
	Name           *string          `json:"name"`
	Type           models.RoomKind  `json:"type"`
	CreatedBy      int64            `json:"created_by"`
	Participants   []int64          `json:"participants"`
	State          models.Lifecycle `json:"state"`
	LastModifiedAt time.Time        `json:"last_modified_at"`
}

func snapshotOf(room models.Room) roomSnapshot {
	return roomSnapshot{
		ID:             room.ID,
		Name:           room.Name,
		Type:           room.Kind,
		CreatedBy:      room.OwnerID,
		Participants:   room.ParticipantIDs,
		State:          room.State,
		LastModifiedAt: room.LastModifiedAt,
	}
}

// storeError translates a repository error into the service taxonomy.
// Unclassified errors are logged with the operation context and surface as
// Internal.
func storeError(ctx context.Context, logger *slog.Logger, op string, err error, conflict string, attrs ...any) error {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		return apperr.NotFound("room not found")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperr.NotFound("message not found")
	case errors.Is(err, repositories.ErrNotParticipant):
		return apperr.Validation("user is not a participant of this room")
	case errors.Is(err, repositories.ErrDirectRoomConflict):
		return apperr.Conflict("an active direct room already exists for these users")
	case errors.Is(err, repositories.ErrStateConflict):
		return apperr.Conflict(conflict)
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return err
	}
	args := append([]any{"op", op}, attrs...)
	args = append(args, "error", err)
	logger.ErrorContext(ctx, "store operation failed", args...)
	return apperr.Internal("store operation failed", err)
}

// userIndex resolves ids to summaries. Users unknown to the directory keep
// their id with empty names.
func userIndex(ctx context.Context, users UserDirectory, ids []int64) (map[int64]models.UserSummary, error) {
	index := make(map[int64]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	found, err := users.BulkUsers(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range found {
		index[u.ID] = u
	}
	return index, nil
}

func summaryOf(index map[int64]models.UserSummary, id int64) models.UserSummary {
	if u, ok := index[id]; ok {
		return u
	}
	return models.UserSummary{ID: id}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// pageQuery decodes a client cursor and clamps the page size.
func pageQuery(cursor string, limit int) (pagination.Query, error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return pagination.Query{}, apperr.Validation("invalid cursor")
	}
	return pagination.Query{After: after, Limit: pagination.ClampLimit(limit)}, nil
}

func messageView(msg models.Message, index map[int64]models.UserSummary) models.MessageView {
	readBy := make([]models.UserSummary, 0, len(msg.ReadBy))
	for _, id := range msg.ReadBy {
		readBy = append(readBy, summaryOf(index, id))
	}
	return models.MessageView{
		ID:             msg.ID,
		Room:           msg.RoomID,
		Sender:         summaryOf(index, msg.SenderID),
		Content:        msg.VisibleContent(),
		Timestamp:      msg.CreatedAt,
		IsDeleted:      msg.State == models.LifecycleDeleted,
		DeletedAt:      msg.DeletedAt,
		IsModified:     msg.Modified,
		LastModifiedAt: msg.LastModifiedAt,
		IsRestored:     msg.State == models.LifecycleRestored,
		RestoredAt:     msg.RestoredAt,
		Delivered:      msg.Delivered,
		Sent:           msg.Sent,
		ReadBy:         readBy,
	}
}
