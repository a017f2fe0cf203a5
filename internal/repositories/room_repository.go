package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
)

const roomColumns = `id, kind, name, owner_id, dedup_key, state, created_at, last_modified_at, deleted_at, restored_at, last_message_id`

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateDirect returns the single active direct room for the pair, restoring
// a soft-deleted one or creating it when none exists. A concurrent creator
// that wins the partial unique index makes our insert fail with 23505; the
// loser rolls back and re-reads the winner's row.
func (r *RoomRepo) CreateDirect(ctx context.Context, requesterID, otherID int64) (models.Room, models.DirectOutcome, error) {
	key := models.DirectKey(requesterID, otherID)
	for attempt := 0; attempt < 3; attempt++ {
		roomID, outcome, err := r.resolveDirect(ctx, key, requesterID, otherID)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return models.Room{}, "", err
		}
		room, err := r.GetRoom(ctx, roomID)
		return room, outcome, err
	}
	return models.Room{}, "", ErrDirectRoomConflict
}

func (r *RoomRepo) resolveDirect(ctx context.Context, key string, requesterID, otherID int64) (int64, models.DirectOutcome, error) {
	var (
		roomID  int64
		outcome models.DirectOutcome
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing models.Room
		err := tx.GetContext(ctx, &existing, `SELECT `+roomColumns+` FROM rooms
            WHERE kind = 'DIRECT' AND dedup_key = $1
            ORDER BY (state = 'DELETED'), id DESC LIMIT 1`, key)
		switch {
		case err == nil && existing.State.Visible():
			roomID, outcome = existing.ID, models.DirectExisting
			return nil
		case err == nil:
			res, err := tx.ExecContext(ctx, `UPDATE rooms SET state = 'RESTORED', restored_at = NOW(), last_modified_at = NOW()
                WHERE id = $1 AND state = 'DELETED'`, existing.ID)
			if err != nil {
				return errors.Wrap(err, "roomRepo.CreateDirect.Restore")
			}
			roomID, outcome = existing.ID, models.DirectExisting
			if n, _ := res.RowsAffected(); n == 1 {
				outcome = models.DirectRestored
			}
			return insertParticipants(ctx, tx, existing.ID, []int64{requesterID, otherID})
		case isNoRows(err):
			if err := tx.GetContext(ctx, &roomID, `INSERT INTO rooms (kind, owner_id, dedup_key)
                VALUES ('DIRECT', $1, $2) RETURNING id`, requesterID, key); err != nil {
				return errors.Wrap(err, "roomRepo.CreateDirect.Insert")
			}
			outcome = models.DirectCreated
			return insertParticipants(ctx, tx, roomID, []int64{requesterID, otherID})
		default:
			return errors.Wrap(err, "roomRepo.CreateDirect.Lookup")
		}
	})
	return roomID, outcome, err
}

// CreateGroup creates a group and its members atomically.
func (r *RoomRepo) CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Room, error) {
	var roomID int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &roomID, `INSERT INTO rooms (kind, name, owner_id) VALUES ('GROUP', $1, $2) RETURNING id`, name, ownerID); err != nil {
			return errors.Wrap(err, "roomRepo.CreateGroup.Insert")
		}
		return insertParticipants(ctx, tx, roomID, append([]int64{ownerID}, memberIDs...))
	})
	if err != nil {
		return models.Room{}, err
	}
	return r.GetRoom(ctx, roomID)
}

// GetRoom fetches a room with its participants and last message.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID)
	if isNoRows(err) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, errors.Wrap(err, "roomRepo.GetRoom.Select")
	}
	rooms := []models.Room{room}
	if err := hydrateRooms(ctx, r.db, rooms); err != nil {
		return models.Room{}, err
	}
	return rooms[0], nil
}

// ListRoomsForUser returns up to q.Limit+1 visible rooms of userID ordered
// by (last_modified_at, id) descending. A non-empty search matches the
// stored name of group rooms and the other participant's display name of
// direct rooms.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int64, search string, q pagination.Query) ([]models.Room, error) {
	args := []any{userID}
	where := []string{"r.state <> 'DELETED'"}

	if search = strings.TrimSpace(search); search != "" {
		args = append(args, likePattern(search))
		n := len(args)
		where = append(where, fmt.Sprintf(`((r.kind = 'GROUP' AND r.name ILIKE $%d)
            OR (r.kind = 'DIRECT' AND EXISTS (
                SELECT 1 FROM room_participants o JOIN users u ON u.id = o.user_id
                WHERE o.room_id = r.id AND o.user_id <> $1
                AND (u.first_name || ' ' || u.last_name) ILIKE $%d)))`, n, n))
	}
	if q.After != nil {
		args = append(args, q.After.At, q.After.ID)
		where = append(where, fmt.Sprintf("(r.last_modified_at, r.id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, q.Limit+1)

	query := fmt.Sprintf(`SELECT r.id, r.kind, r.name, r.owner_id, r.dedup_key, r.state, r.created_at,
            r.last_modified_at, r.deleted_at, r.restored_at, r.last_message_id
        FROM rooms r
        JOIN room_participants me ON me.room_id = r.id AND me.user_id = $1
        WHERE %s
        ORDER BY r.last_modified_at DESC, r.id DESC
        LIMIT $%d`, strings.Join(where, " AND "), len(args))

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, errors.Wrap(err, "roomRepo.ListRoomsForUser.Select")
	}
	if err := hydrateRooms(ctx, r.db, rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// AddParticipants adds the given users and returns the ids that were not
// already members.
func (r *RoomRepo) AddParticipants(ctx context.Context, roomID int64, userIDs []int64) ([]int64, error) {
	var added []int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &added, `INSERT INTO room_participants (room_id, user_id)
            SELECT $1, unnest($2::bigint[])
            ON CONFLICT (room_id, user_id) DO NOTHING
            RETURNING user_id`, roomID, pq.Array(userIDs)); err != nil {
			return errors.Wrap(err, "roomRepo.AddParticipants.Insert")
		}
		if len(added) == 0 {
			return nil
		}
		return touchRoom(ctx, tx, roomID)
	})
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	return added, err
}

// RemoveParticipant drops a member.
func (r *RoomRepo) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
		if err != nil {
			return errors.Wrap(err, "roomRepo.RemoveParticipant.Delete")
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotParticipant
		}
		return touchRoom(ctx, tx, roomID)
	})
}

// UpdateName renames a room.
func (r *RoomRepo) UpdateName(ctx context.Context, roomID int64, name string) (models.Room, error) {
	return r.updateRoom(ctx, roomID, `UPDATE rooms SET name = $2, last_modified_at = NOW() WHERE id = $1`, name)
}

// SoftDeleteRoom moves a visible room to DELETED.
func (r *RoomRepo) SoftDeleteRoom(ctx context.Context, roomID int64) (models.Room, error) {
	return r.updateRoom(ctx, roomID, `UPDATE rooms SET state = 'DELETED', deleted_at = NOW(), last_modified_at = NOW()
        WHERE id = $1 AND state <> 'DELETED'`)
}

// RestoreRoom moves a DELETED room to RESTORED. Restoring a direct room whose
// pair already has another active room violates the dedup index.
func (r *RoomRepo) RestoreRoom(ctx context.Context, roomID int64) (models.Room, error) {
	room, err := r.updateRoom(ctx, roomID, `UPDATE rooms SET state = 'RESTORED', restored_at = NOW(), last_modified_at = NOW()
        WHERE id = $1 AND state = 'DELETED'`)
	if isUniqueViolation(err) {
		return models.Room{}, ErrDirectRoomConflict
	}
	return room, err
}

func (r *RoomRepo) updateRoom(ctx context.Context, roomID int64, stmt string, args ...any) (models.Room, error) {
	res, err := r.db.ExecContext(ctx, stmt, append([]any{roomID}, args...)...)
	if err != nil {
		return models.Room{}, errors.Wrap(err, "roomRepo.updateRoom.Exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Room{}, err
	}
	if n == 0 {
		if _, err := r.GetRoom(ctx, roomID); err != nil {
			return models.Room{}, err
		}
		return models.Room{}, ErrStateConflict
	}
	return r.GetRoom(ctx, roomID)
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, roomID int64, userIDs []int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id)
        SELECT $1, unnest($2::bigint[])
        ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, pq.Array(userIDs))
	return errors.Wrap(err, "insertParticipants")
}

func touchRoom(ctx context.Context, tx *sqlx.Tx, roomID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE rooms SET last_modified_at = NOW() WHERE id = $1`, roomID)
	return errors.Wrap(err, "touchRoom")
}

type participantRow struct {
	RoomID int64 `db:"room_id"`
	UserID int64 `db:"user_id"`
}

// hydrateRooms attaches participants and last messages with one query each.
func hydrateRooms(ctx context.Context, q sqlx.QueryerContext, rooms []models.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	roomIDs := make([]int64, 0, len(rooms))
	var lastIDs []int64
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
		if room.LastMessageID != nil {
			lastIDs = append(lastIDs, *room.LastMessageID)
		}
	}

	var members []participantRow
	if err := sqlx.SelectContext(ctx, q, &members, `SELECT room_id, user_id FROM room_participants
        WHERE room_id = ANY($1) ORDER BY room_id, joined_at, user_id`, pq.Array(roomIDs)); err != nil {
		return errors.Wrap(err, "hydrateRooms.Participants")
	}
	byRoom := make(map[int64][]int64, len(rooms))
	for _, m := range members {
		byRoom[m.RoomID] = append(byRoom[m.RoomID], m.UserID)
	}

	lastByID := map[int64]models.Message{}
	if len(lastIDs) > 0 {
		var msgs []models.Message
		if err := sqlx.SelectContext(ctx, q, &msgs, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(lastIDs)); err != nil {
			return errors.Wrap(err, "hydrateRooms.LastMessages")
		}
		for _, m := range msgs {
			lastByID[m.ID] = m
		}
	}

	for i := range rooms {
		rooms[i].ParticipantIDs = byRoom[rooms[i].ID]
		if rooms[i].LastMessageID != nil {
			if m, ok := lastByID[*rooms[i].LastMessageID]; ok {
				rooms[i].LastMessage = &m
			}
		}
	}
	return nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
