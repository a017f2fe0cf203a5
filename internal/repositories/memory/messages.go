package memory

import (
	"context"
	"sort"
	"time"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

// CreateMessage stores a message, the sender's receipt and the room pointer.
func (s *Store) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return models.Message{}, repositories.ErrRoomNotFound
	}
	now := s.now()
	s.nextMessageID++
	msg := &models.Message{
		ID:        s.nextMessageID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		State:     models.LifecycleActive,
		CreatedAt: now,
		Sent:      true,
		Delivered: true,
		ReadBy:    []int64{senderID},
	}
	s.messages[msg.ID] = msg
	room.LastMessageID = &msg.ID
	room.LastModifiedAt = now
	return cloneMessage(msg), nil
}

// GetMessage retrieves a message in any state.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// ListMessages returns up to q.Limit+1 messages of a room, newest first.
func (s *Store) ListMessages(ctx context.Context, roomID int64, filter repositories.MessageFilter, q pagination.Query) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Message
	for _, msg := range s.messages {
		if msg.RoomID != roomID {
			continue
		}
		if filter.OnlyDeleted && msg.State != models.LifecycleDeleted {
			continue
		}
		if q.After != nil && !q.After.Before(msg.CreatedAt, msg.ID) {
			continue
		}
		matched = append(matched, msg)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if len(matched) > q.Limit+1 {
		matched = matched[:q.Limit+1]
	}
	out := make([]models.Message, 0, len(matched))
	for _, msg := range matched {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

// UpdateContent edits a non-deleted message.
func (s *Store) UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	return s.mutateMessage(ctx, messageID, func(msg *models.Message, now time.Time) error {
		if !msg.State.Visible() {
			return repositories.ErrStateConflict
		}
		msg.Content = content
		msg.Modified = true
		msg.LastModifiedAt = &now
		return nil
	})
}

// SoftDeleteMessage marks a message deleted.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return s.mutateMessage(ctx, messageID, func(msg *models.Message, now time.Time) error {
		if !msg.State.CanTransition(models.LifecycleDeleted) {
			return repositories.ErrStateConflict
		}
		msg.State = models.LifecycleDeleted
		msg.DeletedAt = &now
		return nil
	})
}

// RestoreMessage brings a deleted message back.
func (s *Store) RestoreMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return s.mutateMessage(ctx, messageID, func(msg *models.Message, now time.Time) error {
		if !msg.State.CanTransition(models.LifecycleRestored) {
			return repositories.ErrStateConflict
		}
		msg.State = models.LifecycleRestored
		msg.RestoredAt = &now
		return nil
	})
}

func (s *Store) mutateMessage(ctx context.Context, messageID int64, fn func(msg *models.Message, now time.Time) error) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if err := fn(msg, s.now()); err != nil {
		return models.Message{}, err
	}
	return cloneMessage(msg), nil
}

// MarkRoomRead adds userID to the readers of every unread, non-deleted
// message in the room.
func (s *Store) MarkRoomRead(ctx context.Context, roomID, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	for _, msg := range s.messages {
		if msg.RoomID != roomID || !msg.State.Visible() || msg.IsReadBy(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		marked++
	}
	return marked, nil
}

// UnreadCounts aggregates unread messages per room for userID.
func (s *Store) UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[int64]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[int64]int, len(roomIDs))
	for _, msg := range s.messages {
		if _, ok := wanted[msg.RoomID]; !ok {
			continue
		}
		if msg.State.Visible() && !msg.IsReadBy(userID) {
			counts[msg.RoomID]++
		}
	}
	return counts, nil
}

func cloneMessage(msg *models.Message) models.Message {
	out := *msg
	out.ReadBy = append([]int64(nil), msg.ReadBy...)
	return out
}
