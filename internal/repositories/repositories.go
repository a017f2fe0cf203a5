package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotParticipant     = errors.New("user is not a participant")
	ErrStateConflict      = errors.New("entity already in target state")
	ErrDirectRoomConflict = errors.New("another active direct room exists for this pair")
)

// DefaultReadBatchSize bounds the rows inserted per read-marking transaction.
const DefaultReadBatchSize = 500

// RoomRepository owns room rows and the participant association.
type RoomRepository interface {
	CreateDirect(ctx context.Context, requesterID, otherID int64) (models.Room, models.DirectOutcome, error)
	CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Room, error)
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int64, search string, q pagination.Query) ([]models.Room, error)
	AddParticipants(ctx context.Context, roomID int64, userIDs []int64) ([]int64, error)
	RemoveParticipant(ctx context.Context, roomID, userID int64) error
	UpdateName(ctx context.Context, roomID int64, name string) (models.Room, error)
	SoftDeleteRoom(ctx context.Context, roomID int64) (models.Room, error)
	RestoreRoom(ctx context.Context, roomID int64) (models.Room, error)
}

// MessageFilter narrows ListMessages.
type MessageFilter struct {
	OnlyDeleted bool
}

// MessageRepository owns message rows. CreateMessage also seeds the sender's
// read receipt and moves the room's last-message pointer in the same commit.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, roomID int64, filter MessageFilter, q pagination.Query) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64) (models.Message, error)
	RestoreMessage(ctx context.Context, messageID int64) (models.Message, error)
}

// ReadTracker owns the message/user read association.
type ReadTracker interface {
	MarkRoomRead(ctx context.Context, roomID, userID int64) (int, error)
}

// UnreadCounter derives unread counts per room in one aggregation.
type UnreadCounter interface {
	UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int, error)
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
