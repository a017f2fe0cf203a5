// Package memory is a process-local implementation of the chat store. A
// single mutex stands in for the database's transactions and for the
// direct-room uniqueness index.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

// Store keeps rooms, messages, read receipts and a user directory in memory.
type Store struct {
	mu sync.Mutex

	nextRoomID    int64
	nextMessageID int64
	rooms         map[int64]*models.Room
	messages      map[int64]*models.Message
	users         map[int64]models.UserSummary
	lastTick      time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rooms:    make(map[int64]*models.Room),
		messages: make(map[int64]*models.Message),
		users:    make(map[int64]models.UserSummary),
	}
}

var (
	_ repositories.RoomRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.ReadTracker       = (*Store)(nil)
	_ repositories.UnreadCounter     = (*Store)(nil)
)

// now returns a strictly increasing, microsecond-precision timestamp, the
// resolution Postgres keeps. Callers hold s.mu.
func (s *Store) now() time.Time {
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Microsecond)
	}
	s.lastTick = t
	return t
}

// PutUser registers or replaces a directory entry.
func (s *Store) PutUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// UserExists reports whether id is known.
func (s *Store) UserExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

// BulkUsers returns the known users among ids, ordered by id.
func (s *Store) BulkUsers(_ context.Context, ids []int64) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserSummary, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateDirect resolves the single active direct room for the pair.
func (s *Store) CreateDirect(ctx context.Context, requesterID, otherID int64) (models.Room, models.DirectOutcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Room{}, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.DirectKey(requesterID, otherID)
	var deleted *models.Room
	for _, room := range s.rooms {
		if room.Kind != models.RoomDirect || room.DedupKey == nil || *room.DedupKey != key {
			continue
		}
		if room.State.Visible() {
			return s.cloneRoom(room), models.DirectExisting, nil
		}
		if deleted == nil || room.ID > deleted.ID {
			deleted = room
		}
	}

	if deleted != nil {
		now := s.now()
		deleted.State = models.LifecycleRestored
		deleted.RestoredAt = &now
		deleted.LastModifiedAt = now
		addMembers(deleted, []int64{requesterID, otherID})
		return s.cloneRoom(deleted), models.DirectRestored, nil
	}

	now := s.now()
	s.nextRoomID++
	room := &models.Room{
		ID:             s.nextRoomID,
		Kind:           models.RoomDirect,
		OwnerID:        requesterID,
		DedupKey:       &key,
		State:          models.LifecycleActive,
		CreatedAt:      now,
		LastModifiedAt: now,
		ParticipantIDs: []int64{requesterID, otherID},
	}
	s.rooms[room.ID] = room
	return s.cloneRoom(room), models.DirectCreated, nil
}

// CreateGroup creates a group room owned by ownerID.
func (s *Store) CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Room, error) {
	if err := ctx.Err(); err != nil {
		return models.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.nextRoomID++
	room := &models.Room{
		ID:             s.nextRoomID,
		Kind:           models.RoomGroup,
		Name:           &name,
		OwnerID:        ownerID,
		State:          models.LifecycleActive,
		CreatedAt:      now,
		LastModifiedAt: now,
		ParticipantIDs: []int64{ownerID},
	}
	addMembers(room, memberIDs)
	s.rooms[room.ID] = room
	return s.cloneRoom(room), nil
}

// GetRoom fetches a room in any state.
func (s *Store) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	if err := ctx.Err(); err != nil {
		return models.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return s.cloneRoom(room), nil
}

// ListRoomsForUser mirrors the SQL listing: visible rooms of userID, newest
// modification first, up to q.Limit+1 rows after the cursor.
func (s *Store) ListRoomsForUser(ctx context.Context, userID int64, search string, q pagination.Query) ([]models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	var matched []*models.Room
	for _, room := range s.rooms {
		if !room.State.Visible() || !room.HasParticipant(userID) {
			continue
		}
		if needle != "" && !s.matches(room, userID, needle) {
			continue
		}
		if q.After != nil && !q.After.Before(room.LastModifiedAt, room.ID) {
			continue
		}
		matched = append(matched, room)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.LastModifiedAt.Equal(b.LastModifiedAt) {
			return a.LastModifiedAt.After(b.LastModifiedAt)
		}
		return a.ID > b.ID
	})
	if len(matched) > q.Limit+1 {
		matched = matched[:q.Limit+1]
	}
	out := make([]models.Room, 0, len(matched))
	for _, room := range matched {
		out = append(out, s.cloneRoom(room))
	}
	return out, nil
}

func (s *Store) matches(room *models.Room, userID int64, needle string) bool {
	if room.Kind == models.RoomGroup {
		return room.Name != nil && strings.Contains(strings.ToLower(*room.Name), needle)
	}
	for _, id := range room.ParticipantIDs {
		if id == userID {
			continue
		}
		if u, ok := s.users[id]; ok && strings.Contains(strings.ToLower(u.DisplayName()), needle) {
			return true
		}
	}
	return false
}

// AddParticipants adds members and returns the ids actually added.
func (s *Store) AddParticipants(ctx context.Context, roomID int64, userIDs []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, repositories.ErrRoomNotFound
	}
	added := addMembers(room, userIDs)
	if len(added) > 0 {
		room.LastModifiedAt = s.now()
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	return added, nil
}

// RemoveParticipant drops a member.
func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	kept := room.ParticipantIDs[:0:0]
	for _, id := range room.ParticipantIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(room.ParticipantIDs) {
		return repositories.ErrNotParticipant
	}
	room.ParticipantIDs = kept
	room.LastModifiedAt = s.now()
	return nil
}

// UpdateName renames a room.
func (s *Store) UpdateName(ctx context.Context, roomID int64, name string) (models.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *models.Room, now time.Time) error {
		room.Name = &name
		room.LastModifiedAt = now
		return nil
	})
}

// SoftDeleteRoom moves a visible room to DELETED.
func (s *Store) SoftDeleteRoom(ctx context.Context, roomID int64) (models.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *models.Room, now time.Time) error {
		if !room.State.CanTransition(models.LifecycleDeleted) {
			return repositories.ErrStateConflict
		}
		room.State = models.LifecycleDeleted
		room.DeletedAt = &now
		room.LastModifiedAt = now
		return nil
	})
}

// RestoreRoom moves a DELETED room to RESTORED.
func (s *Store) RestoreRoom(ctx context.Context, roomID int64) (models.Room, error) {
	return s.mutateRoom(ctx, roomID, func(room *models.Room, now time.Time) error {
		if !room.State.CanTransition(models.LifecycleRestored) {
			return repositories.ErrStateConflict
		}
		if room.Kind == models.RoomDirect {
			for _, other := range s.rooms {
				if other.ID != room.ID && other.Kind == models.RoomDirect && other.State.Visible() &&
					other.DedupKey != nil && room.DedupKey != nil && *other.DedupKey == *room.DedupKey {
					return repositories.ErrDirectRoomConflict
				}
			}
		}
		room.State = models.LifecycleRestored
		room.RestoredAt = &now
		room.LastModifiedAt = now
		return nil
	})
}

func (s *Store) mutateRoom(ctx context.Context, roomID int64, fn func(room *models.Room, now time.Time) error) (models.Room, error) {
	if err := ctx.Err(); err != nil {
		return models.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	if err := fn(room, s.now()); err != nil {
		return models.Room{}, err
	}
	return s.cloneRoom(room), nil
}

// cloneRoom copies a room with its last message attached. Callers hold s.mu.
func (s *Store) cloneRoom(room *models.Room) models.Room {
	out := *room
	out.ParticipantIDs = append([]int64(nil), room.ParticipantIDs...)
	out.LastMessage = nil
	if room.LastMessageID != nil {
		if msg, ok := s.messages[*room.LastMessageID]; ok {
			m := cloneMessage(msg)
			out.LastMessage = &m
		}
	}
	return out
}

func addMembers(room *models.Room, userIDs []int64) []int64 {
	var added []int64
	for _, id := range userIDs {
		if room.HasParticipant(id) {
			continue
		}
		room.ParticipantIDs = append(room.ParticipantIDs, id)
		added = append(added, id)
	}
	return added
}
