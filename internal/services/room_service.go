package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

// RoomService implements room creation, listing, membership and lifecycle.
type RoomService struct {
	rooms    repositories.RoomRepository
	unread   repositories.UnreadCounter
	users    UserDirectory
	authz    Authorizer
	notifier Notifier
	logger   *slog.Logger
}

// NewRoomService builds a RoomService. A nil logger selects slog.Default.
func NewRoomService(rooms repositories.RoomRepository, unread repositories.UnreadCounter, users UserDirectory, authz Authorizer, notifier Notifier, logger *slog.Logger) *RoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomService{
		rooms:    rooms,
		unread:   unread,
		users:    users,
		authz:    authz,
		notifier: notifier,
		logger:   logger.With("component", "room_service"),
	}
}

// CreateDirect returns the direct room between actor and otherID, creating
// or restoring it as needed. room_created is emitted on every path so
// clients can reconcile.
func (s *RoomService) CreateDirect(ctx context.Context, actor models.CurrentUser, otherID int64) (models.RoomView, models.DirectOutcome, error) {
	if otherID <= 0 {
		return models.RoomView{}, "", apperr.Validation("user_id is required")
	}
	if otherID == actor.ID {
		return models.RoomView{}, "", apperr.Validation("cannot start a direct chat with yourself")
	}
	exists, err := s.users.UserExists(ctx, otherID)
	if err != nil {
		return models.RoomView{}, "", storeError(ctx, s.logger, "room.CreateDirect.UserExists", err, "", "user_id", actor.ID, "other_id", otherID)
	}
	if !exists {
		return models.RoomView{}, "", apperr.NotFound("user not found")
	}

	room, outcome, err := s.rooms.CreateDirect(ctx, actor.ID, otherID)
	if err != nil {
		return models.RoomView{}, "", storeError(ctx, s.logger, "room.CreateDirect", err, "", "user_id", actor.ID, "other_id", otherID)
	}
	s.notify(ctx, models.EventRoomCreated, room, snapshotOf(room), room.ParticipantIDs)

	view, err := s.view(ctx, actor, room)
	return view, outcome, err
}

// CreateGroup creates a named group of the actor plus at least two others.
func (s *RoomService) CreateGroup(ctx context.Context, actor models.CurrentUser, name string, memberIDs []int64) (models.RoomView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.RoomView{}, apperr.Validation("group name is required")
	}
	members, err := otherMembers(actor.ID, memberIDs)
	if err != nil {
		return models.RoomView{}, err
	}
	if len(members) < 2 {
		return models.RoomView{}, apperr.Validation("a group needs at least two members besides its creator")
	}
	if err := s.requireUsers(ctx, members); err != nil {
		return models.RoomView{}, err
	}

	room, err := s.rooms.CreateGroup(ctx, actor.ID, name, members)
	if err != nil {
		return models.RoomView{}, storeError(ctx, s.logger, "room.CreateGroup", err, "", "user_id", actor.ID)
	}
	s.notify(ctx, models.EventRoomCreated, room, snapshotOf(room), room.ParticipantIDs)
	return s.view(ctx, actor, room)
}

// ListForUser returns one page of the actor's visible rooms, most recently
// modified first.
func (s *RoomService) ListForUser(ctx context.Context, actor models.CurrentUser, search, cursor string, limit int) (models.RoomPage, error) {
	q, err := pageQuery(cursor, limit)
	if err != nil {
		return models.RoomPage{}, err
	}
	rows, err := s.rooms.ListRoomsForUser(ctx, actor.ID, search, q)
	if err != nil {
		return models.RoomPage{}, storeError(ctx, s.logger, "room.ListForUser", err, "", "user_id", actor.ID)
	}
	page, next := pagination.Next(rows, q.Limit, func(r models.Room) pagination.Cursor {
		return pagination.Cursor{At: r.LastModifiedAt, ID: r.ID}
	})
	views, err := s.views(ctx, actor, page)
	if err != nil {
		return models.RoomPage{}, err
	}
	return models.RoomPage{Results: views, Next: next}, nil
}

// Retrieve returns a visible room the actor currently belongs to.
func (s *RoomService) Retrieve(ctx context.Context, actor models.CurrentUser, roomID int64) (models.RoomView, error) {
	room, err := loadRoom(ctx, s.logger, s.rooms, "room.Retrieve", roomID, true)
	if err != nil {
		return models.RoomView{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionViewRoom, Resource{Room: &room}); err != nil {
		return models.RoomView{}, err
	}
	return s.view(ctx, actor, room)
}

// AddParticipants adds users to a group the actor owns and returns the ids
// that were not members before.
func (s *RoomService) AddParticipants(ctx context.Context, actor models.CurrentUser, roomID int64, userIDs []int64) (models.RoomView, []int64, error) {
	room, err := s.managedGroup(ctx, actor, "room.AddParticipants", roomID)
	if err != nil {
		return models.RoomView{}, nil, err
	}
	ids, err := otherMembers(actor.ID, userIDs)
	if err != nil {
		return models.RoomView{}, nil, err
	}
	if len(ids) == 0 {
		return models.RoomView{}, nil, apperr.Validation("user_ids must name at least one user other than yourself")
	}
	if err := s.requireUsers(ctx, ids); err != nil {
		return models.RoomView{}, nil, err
	}

	added, err := s.rooms.AddParticipants(ctx, roomID, ids)
	if err != nil {
		return models.RoomView{}, nil, storeError(ctx, s.logger, "room.AddParticipants", err, "", "room_id", roomID, "user_id", actor.ID)
	}
	if len(added) > 0 {
		if room, err = loadRoom(ctx, s.logger, s.rooms, "room.AddParticipants.Reload", roomID, false); err != nil {
			return models.RoomView{}, nil, err
		}
		s.notify(ctx, models.EventParticipantsAdded, room, map[string]any{
			"room_id":  room.ID,
			"user_ids": added,
			"room":     snapshotOf(room),
		}, room.ParticipantIDs)
	}
	view, err := s.view(ctx, actor, room)
	return view, added, err
}

// RemoveParticipant drops a non-owner member from a group the actor owns.
func (s *RoomService) RemoveParticipant(ctx context.Context, actor models.CurrentUser, roomID, userID int64) (models.RoomView, error) {
	room, err := s.managedGroup(ctx, actor, "room.RemoveParticipant", roomID)
	if err != nil {
		return models.RoomView{}, err
	}
	if userID == room.OwnerID {
		return models.RoomView{}, apperr.Validation("the room owner cannot be removed")
	}
	if !room.HasParticipant(userID) {
		return models.RoomView{}, apperr.Validation("user is not a participant of this room")
	}
	recipients := room.ParticipantIDs

	if err := s.rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
		return models.RoomView{}, storeError(ctx, s.logger, "room.RemoveParticipant", err, "", "room_id", roomID, "user_id", actor.ID, "target_id", userID)
	}
	if room, err = loadRoom(ctx, s.logger, s.rooms, "room.RemoveParticipant.Reload", roomID, false); err != nil {
		return models.RoomView{}, err
	}
	s.notify(ctx, models.EventParticipantRemoved, room, map[string]any{
		"room_id": room.ID,
		"user_id": userID,
		"room":    snapshotOf(room),
	}, recipients)
	return s.view(ctx, actor, room)
}

// UpdateName renames a group the actor owns.
func (s *RoomService) UpdateName(ctx context.Context, actor models.CurrentUser, roomID int64, name string) (models.RoomView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.RoomView{}, apperr.Validation("name is required")
	}
	room, err := loadRoom(ctx, s.logger, s.rooms, "room.UpdateName", roomID, true)
	if err != nil {
		return models.RoomView{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionManageRoom, Resource{Room: &room}); err != nil {
		return models.RoomView{}, err
	}
	if room.Kind == models.RoomDirect {
		return models.RoomView{}, apperr.Validation("direct rooms cannot be renamed")
	}

	room, err = s.rooms.UpdateName(ctx, roomID, name)
	if err != nil {
		return models.RoomView{}, storeError(ctx, s.logger, "room.UpdateName", err, "", "room_id", roomID, "user_id", actor.ID)
	}
	s.notify(ctx, models.EventRoomUpdated, room, snapshotOf(room), room.ParticipantIDs)
	return s.view(ctx, actor, room)
}

// SoftDelete hides a room the actor owns. Messages are kept.
func (s *RoomService) SoftDelete(ctx context.Context, actor models.CurrentUser, roomID int64) (models.RoomView, error) {
	room, err := loadRoom(ctx, s.logger, s.rooms, "room.SoftDelete", roomID, false)
	if err != nil {
		return models.RoomView{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionManageRoom, Resource{Room: &room}); err != nil {
		return models.RoomView{}, err
	}

	room, err = s.rooms.SoftDeleteRoom(ctx, roomID)
	if err != nil {
		return models.RoomView{}, storeError(ctx, s.logger, "room.SoftDelete", err, "room is already deleted", "room_id", roomID, "user_id", actor.ID)
	}
	s.notify(ctx, models.EventRoomDeleted, room, snapshotOf(room), room.ParticipantIDs)
	return s.view(ctx, actor, room)
}

// Restore brings a soft-deleted room back. Privileged.
func (s *RoomService) Restore(ctx context.Context, actor models.CurrentUser, roomID int64) (models.RoomView, error) {
	if err := s.authz.Authorize(ctx, actor, ActionRestoreRoom, Resource{}); err != nil {
		return models.RoomView{}, err
	}
	room, err := s.rooms.RestoreRoom(ctx, roomID)
	if err != nil {
		return models.RoomView{}, storeError(ctx, s.logger, "room.Restore", err, "room is not deleted", "room_id", roomID, "user_id", actor.ID)
	}
	s.notify(ctx, models.EventRoomRestored, room, snapshotOf(room), room.ParticipantIDs)
	return s.view(ctx, actor, room)
}

func (s *RoomService) managedGroup(ctx context.Context, actor models.CurrentUser, op string, roomID int64) (models.Room, error) {
	room, err := loadRoom(ctx, s.logger, s.rooms, op, roomID, true)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionManageRoom, Resource{Room: &room}); err != nil {
		return models.Room{}, err
	}
	if room.Kind != models.RoomGroup {
		return models.Room{}, apperr.Validation("participants can only be changed in group rooms")
	}
	return room, nil
}

// requireUsers fails with a validation error naming the first unknown id.
func (s *RoomService) requireUsers(ctx context.Context, ids []int64) error {
	found, err := s.users.BulkUsers(ctx, ids)
	if err != nil {
		return storeError(ctx, s.logger, "room.requireUsers", err, "")
	}
	known := make(map[int64]struct{}, len(found))
	for _, u := range found {
		known[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return apperr.Validation("unknown user id " + strconv.FormatInt(id, 10))
		}
	}
	return nil
}

func (s *RoomService) notify(ctx context.Context, name string, room models.Room, data any, recipients []int64) {
	s.notifier.Notify(ctx, models.ChannelRoomEvents, models.NewEvent(name, room.ID, data, recipients))
}

func (s *RoomService) view(ctx context.Context, actor models.CurrentUser, room models.Room) (models.RoomView, error) {
	views, err := s.views(ctx, actor, []models.Room{room})
	if err != nil {
		return models.RoomView{}, err
	}
	return views[0], nil
}

// views renders rooms for actor with one unread aggregation and one user
// lookup for the whole batch.
func (s *RoomService) views(ctx context.Context, actor models.CurrentUser, rooms []models.Room) ([]models.RoomView, error) {
	out := make([]models.RoomView, 0, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}
	roomIDs := make([]int64, 0, len(rooms))
	var userIDs []int64
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
		userIDs = append(userIDs, room.ParticipantIDs...)
		if room.LastMessage != nil {
			userIDs = append(userIDs, room.LastMessage.SenderID)
		}
	}

	counts, err := s.unread.UnreadCounts(ctx, actor.ID, roomIDs)
	if err != nil {
		return nil, storeError(ctx, s.logger, "room.views.UnreadCounts", err, "", "user_id", actor.ID)
	}
	index, err := userIndex(ctx, s.users, userIDs)
	if err != nil {
		return nil, storeError(ctx, s.logger, "room.views.BulkUsers", err, "", "user_id", actor.ID)
	}
	for _, room := range rooms {
		out = append(out, roomView(actor.ID, room, counts[room.ID], index))
	}
	return out, nil
}

func roomView(viewer int64, room models.Room, unread int, index map[int64]models.UserSummary) models.RoomView {
	participants := make([]models.UserSummary, 0, len(room.ParticipantIDs))
	for _, id := range room.ParticipantIDs {
		participants = append(participants, summaryOf(index, id))
	}

	var name string
	switch {
	case room.Name != nil:
		name = *room.Name
	case room.Kind == models.RoomDirect:
		if other, ok := room.OtherParticipant(viewer); ok {
			name = summaryOf(index, other).DisplayName()
		}
	}

	var last *models.MessageSummary
	if msg := room.LastMessage; msg != nil {
		last = &models.MessageSummary{
			ID:        msg.ID,
			Content:   msg.VisibleContent(),
			Timestamp: msg.CreatedAt,
			Sender:    summaryOf(index, msg.SenderID),
		}
	}

	return models.RoomView{
		ID:                  room.ID,
		Name:                name,
		Type:                room.Kind,
		CreatedBy:           room.OwnerID,
		Participants:        participants,
		CreatedAt:           room.CreatedAt,
		LastModifiedAt:      room.LastModifiedAt,
		IsActive:            room.State.Visible(),
		LastMessage:         last,
		UnreadMessagesCount: unread,
		IsDeleted:           room.State == models.LifecycleDeleted,
		DeletedAt:           room.DeletedAt,
		IsRestored:          room.State == models.LifecycleRestored,
		RestoredAt:          room.RestoredAt,
	}
}

// loadRoom fetches a room. With visibleOnly, a deleted room is reported as
// not found.
func loadRoom(ctx context.Context, logger *slog.Logger, rooms repositories.RoomRepository, op string, roomID int64, visibleOnly bool) (models.Room, error) {
	room, err := rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, storeError(ctx, logger, op, err, "", "room_id", roomID)
	}
	if visibleOnly && !room.State.Visible() {
		return models.Room{}, apperr.NotFound("room not found")
	}
	return room, nil
}

// otherMembers dedups ids and drops the actor. Non-positive ids are invalid.
func otherMembers(actorID int64, ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if id <= 0 {
			return nil, apperr.Validation("user ids must be positive")
		}
		if id != actorID {
			out = append(out, id)
		}
	}
	return out, nil
}
