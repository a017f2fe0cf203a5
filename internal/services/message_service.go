package services

import (
	"context"
	"log/slog"
	"strings"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

// NoUnreadMessages is reported by MarkRead when nothing was pending.
const NoUnreadMessages = "no unread messages"

// ReadReceipt is the outcome of MarkRead.
type ReadReceipt struct {
	Marked  int    `json:"marked"`
	Message string `json:"message"`
}

// MessageService implements sending, editing, deleting and reading messages.
type MessageService struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadTracker
	users    UserDirectory
	authz    Authorizer
	notifier Notifier
	logger   *slog.Logger
}

// NewMessageService builds a MessageService. A nil logger selects slog.Default.
func NewMessageService(rooms repositories.RoomRepository, messages repositories.MessageRepository, reads repositories.ReadTracker, users UserDirectory, authz Authorizer, notifier Notifier, logger *slog.Logger) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{
		rooms:    rooms,
		messages: messages,
		reads:    reads,
		users:    users,
		authz:    authz,
		notifier: notifier,
		logger:   logger.With("component", "message_service"),
	}
}

// Send stores a message from a current participant of a visible room.
func (s *MessageService) Send(ctx context.Context, actor models.CurrentUser, roomID int64, content string) (models.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return models.MessageView{}, apperr.Validation("content is required")
	}
	room, err := loadRoom(ctx, s.logger, s.rooms, "message.Send", roomID, true)
	if err != nil {
		return models.MessageView{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionSendMessage, Resource{Room: &room}); err != nil {
		return models.MessageView{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, roomID, actor.ID, content)
	if err != nil {
		return models.MessageView{}, storeError(ctx, s.logger, "message.Send", err, "", "room_id", roomID, "user_id", actor.ID)
	}
	return s.publish(ctx, models.EventNewMessage, room, msg)
}

// Edit replaces the content of the actor's own message in roomID.
func (s *MessageService) Edit(ctx context.Context, actor models.CurrentUser, roomID, messageID int64, content string) (models.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return models.MessageView{}, apperr.Validation("content is required")
	}
	room, msg, err := s.authoredMessage(ctx, actor, "message.Edit", roomID, messageID)
	if err != nil {
		return models.MessageView{}, err
	}
	if msg.State == models.LifecycleDeleted {
		return models.MessageView{}, apperr.Conflict("deleted messages cannot be edited")
	}

	msg, err = s.messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		return models.MessageView{}, storeError(ctx, s.logger, "message.Edit", err, "deleted messages cannot be edited", "room_id", roomID, "message_id", messageID, "user_id", actor.ID)
	}
	return s.publish(ctx, models.EventEditMessage, room, msg)
}

// SoftDelete tombstones the actor's own message in roomID.
func (s *MessageService) SoftDelete(ctx context.Context, actor models.CurrentUser, roomID, messageID int64) (models.MessageView, error) {
	room, _, err := s.authoredMessage(ctx, actor, "message.SoftDelete", roomID, messageID)
	if err != nil {
		return models.MessageView{}, err
	}
	msg, err := s.messages.SoftDeleteMessage(ctx, messageID)
	if err != nil {
		return models.MessageView{}, storeError(ctx, s.logger, "message.SoftDelete", err, "message is already deleted", "room_id", roomID, "message_id", messageID, "user_id", actor.ID)
	}
	return s.publish(ctx, models.EventDeleteMessage, room, msg)
}

// Restore brings a deleted message back. Privileged.
func (s *MessageService) Restore(ctx context.Context, actor models.CurrentUser, messageID int64) (models.MessageView, error) {
	if err := s.authz.Authorize(ctx, actor, ActionRestoreMessage, Resource{}); err != nil {
		return models.MessageView{}, err
	}
	msg, err := s.messages.RestoreMessage(ctx, messageID)
	if err != nil {
		return models.MessageView{}, storeError(ctx, s.logger, "message.Restore", err, "message is not deleted", "message_id", messageID, "user_id", actor.ID)
	}
	room, err := loadRoom(ctx, s.logger, s.rooms, "message.Restore.Room", msg.RoomID, false)
	if err != nil {
		return models.MessageView{}, err
	}
	return s.publish(ctx, models.EventRestoreMessage, room, msg)
}

// MarkRead records the actor as reader of every unread, non-deleted message
// in the room. Repeating the call marks nothing and is not an error.
func (s *MessageService) MarkRead(ctx context.Context, actor models.CurrentUser, roomID int64) (ReadReceipt, error) {
	room, err := s.viewableRoom(ctx, actor, "message.MarkRead", roomID)
	if err != nil {
		return ReadReceipt{}, err
	}
	marked, err := s.reads.MarkRoomRead(ctx, roomID, actor.ID)
	if err != nil {
		return ReadReceipt{}, storeError(ctx, s.logger, "message.MarkRead", err, "", "room_id", roomID, "user_id", actor.ID, "marked", marked)
	}
	if marked == 0 {
		return ReadReceipt{Message: NoUnreadMessages}, nil
	}
	s.notifier.Notify(ctx, models.ChannelRoomEvents, models.NewEvent(models.EventMarkRead, roomID, map[string]any{
		"room_id": roomID,
		"user":    actor.Summary(),
		"marked":  marked,
	}, room.ParticipantIDs))
	return ReadReceipt{Marked: marked, Message: "messages marked as read"}, nil
}

// ListForRoom returns one page of a room's messages, newest first.
func (s *MessageService) ListForRoom(ctx context.Context, actor models.CurrentUser, roomID int64, cursor string, limit int) (models.MessagePage, error) {
	if _, err := s.viewableRoom(ctx, actor, "message.ListForRoom", roomID); err != nil {
		return models.MessagePage{}, err
	}
	return s.page(ctx, actor, "message.ListForRoom", roomID, repositories.MessageFilter{}, cursor, limit)
}

// ListDeleted returns one page of a room's deleted messages. Privileged.
func (s *MessageService) ListDeleted(ctx context.Context, actor models.CurrentUser, roomID int64, cursor string, limit int) (models.MessagePage, error) {
	if err := s.authz.Authorize(ctx, actor, ActionListDeleted, Resource{}); err != nil {
		return models.MessagePage{}, err
	}
	if _, err := loadRoom(ctx, s.logger, s.rooms, "message.ListDeleted", roomID, false); err != nil {
		return models.MessagePage{}, err
	}
	return s.page(ctx, actor, "message.ListDeleted", roomID, repositories.MessageFilter{OnlyDeleted: true}, cursor, limit)
}

// Get returns one message of a room the actor currently belongs to.
func (s *MessageService) Get(ctx context.Context, actor models.CurrentUser, messageID int64) (models.MessageView, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.MessageView{}, storeError(ctx, s.logger, "message.Get", err, "", "message_id", messageID, "user_id", actor.ID)
	}
	if _, err := s.viewableRoom(ctx, actor, "message.Get.Room", msg.RoomID); err != nil {
		return models.MessageView{}, err
	}
	views, err := s.views(ctx, []models.Message{msg})
	if err != nil {
		return models.MessageView{}, err
	}
	return views[0], nil
}

func (s *MessageService) page(ctx context.Context, actor models.CurrentUser, op string, roomID int64, filter repositories.MessageFilter, cursor string, limit int) (models.MessagePage, error) {
	q, err := pageQuery(cursor, limit)
	if err != nil {
		return models.MessagePage{}, err
	}
	rows, err := s.messages.ListMessages(ctx, roomID, filter, q)
	if err != nil {
		return models.MessagePage{}, storeError(ctx, s.logger, op, err, "", "room_id", roomID, "user_id", actor.ID)
	}
	page, next := pagination.Next(rows, q.Limit, func(m models.Message) pagination.Cursor {
		return pagination.Cursor{At: m.CreatedAt, ID: m.ID}
	})
	views, err := s.views(ctx, page)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{Results: views, Next: next}, nil
}

func (s *MessageService) viewableRoom(ctx context.Context, actor models.CurrentUser, op string, roomID int64) (models.Room, error) {
	room, err := loadRoom(ctx, s.logger, s.rooms, op, roomID, true)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionViewRoom, Resource{Room: &room}); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// authoredMessage loads a message of roomID that the actor sent while still
// being a member of the room.
func (s *MessageService) authoredMessage(ctx context.Context, actor models.CurrentUser, op string, roomID, messageID int64) (models.Room, models.Message, error) {
	room, err := s.viewableRoom(ctx, actor, op, roomID)
	if err != nil {
		return models.Room{}, models.Message{}, err
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Room{}, models.Message{}, storeError(ctx, s.logger, op, err, "", "message_id", messageID)
	}
	if msg.RoomID != roomID {
		return models.Room{}, models.Message{}, apperr.Validation("message does not belong to this room")
	}
	if err := s.authz.Authorize(ctx, actor, ActionAuthorMessage, Resource{Room: &room, Message: &msg}); err != nil {
		return models.Room{}, models.Message{}, err
	}
	return room, msg, nil
}

// publish renders msg, emits it on the message channel to the room's
// participants and returns the rendered view.
func (s *MessageService) publish(ctx context.Context, name string, room models.Room, msg models.Message) (models.MessageView, error) {
	views, err := s.views(ctx, []models.Message{msg})
	if err != nil {
		fallback := messageView(msg, nil)
		s.notifier.Notify(ctx, models.ChannelMessageEvents, models.NewEvent(name, room.ID, fallback, room.ParticipantIDs))
		return models.MessageView{}, err
	}
	s.notifier.Notify(ctx, models.ChannelMessageEvents, models.NewEvent(name, room.ID, views[0], room.ParticipantIDs))
	return views[0], nil
}

func (s *MessageService) views(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	var ids []int64
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
		ids = append(ids, m.ReadBy...)
	}
	index, err := userIndex(ctx, s.users, ids)
	if err != nil {
		return nil, storeError(ctx, s.logger, "message.views.BulkUsers", err, "")
	}
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m, index))
	}
	return out, nil
}
