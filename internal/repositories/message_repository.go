package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"chat-core/internal/models"
	"chat-core/internal/pagination"
)

const messageColumns = `id, room_id, sender_id, content, state, created_at, modified, last_modified_at, deleted_at, restored_at, sent, delivered`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message, records the sender's own read receipt and
// points the room's last_message at it in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.Message, error) {
	var msg models.Message
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &msg, `INSERT INTO messages (room_id, sender_id, content, sent, delivered)
            VALUES ($1, $2, $3, TRUE, TRUE) RETURNING `+messageColumns, roomID, senderID, content); err != nil {
			return errors.Wrap(err, "messageRepo.CreateMessage.Insert")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
            ON CONFLICT (message_id, user_id) DO NOTHING`, msg.ID, senderID); err != nil {
			return errors.Wrap(err, "messageRepo.CreateMessage.SelfRead")
		}
		res, err := tx.ExecContext(ctx, `UPDATE rooms SET last_message_id = $2, last_modified_at = NOW() WHERE id = $1`, roomID, msg.ID)
		if err != nil {
			return errors.Wrap(err, "messageRepo.CreateMessage.RoomPointer")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	msg.ReadBy = []int64{senderID}
	return msg, nil
}

// GetMessage retrieves a single message with its readers.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	if isNoRows(err) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, errors.Wrap(err, "messageRepo.GetMessage.Select")
	}
	msgs := []models.Message{msg}
	if err := attachReadBy(ctx, r.db, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// ListMessages returns up to q.Limit+1 messages of a room, newest first.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID int64, filter MessageFilter, q pagination.Query) ([]models.Message, error) {
	args := []any{roomID}
	where := []string{"room_id = $1"}
	if filter.OnlyDeleted {
		where = append(where, "state = 'DELETED'")
	}
	if q.After != nil {
		args = append(args, q.After.At, q.After.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, q.Limit+1)

	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		messageColumns, strings.Join(where, " AND "), len(args))

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListMessages.Select")
	}
	if err := attachReadBy(ctx, r.db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateContent edits a non-deleted message.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	return r.updateMessage(ctx, messageID, `UPDATE messages SET content = $2, modified = TRUE, last_modified_at = NOW()
        WHERE id = $1 AND state <> 'DELETED'`, content)
}

// SoftDeleteMessage marks a message deleted; content stays in storage.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return r.updateMessage(ctx, messageID, `UPDATE messages SET state = 'DELETED', deleted_at = NOW()
        WHERE id = $1 AND state <> 'DELETED'`)
}

// RestoreMessage brings a deleted message back.
func (r *MessageRepo) RestoreMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return r.updateMessage(ctx, messageID, `UPDATE messages SET state = 'RESTORED', restored_at = NOW()
        WHERE id = $1 AND state = 'DELETED'`)
}

func (r *MessageRepo) updateMessage(ctx context.Context, messageID int64, stmt string, args ...any) (models.Message, error) {
	res, err := r.db.ExecContext(ctx, stmt, append([]any{messageID}, args...)...)
	if err != nil {
		return models.Message{}, errors.Wrap(err, "messageRepo.updateMessage.Exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if n == 0 {
		if _, err := r.GetMessage(ctx, messageID); err != nil {
			return models.Message{}, err
		}
		return models.Message{}, ErrStateConflict
	}
	return r.GetMessage(ctx, messageID)
}

type readRow struct {
	MessageID int64 `db:"message_id"`
	UserID    int64 `db:"user_id"`
}

// attachReadBy loads the readers of all msgs with a single query.
func attachReadBy(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	var rows []readRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT message_id, user_id FROM message_reads
        WHERE message_id = ANY($1) ORDER BY read_at, user_id`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "attachReadBy.Select")
	}
	byMessage := make(map[int64][]int64, len(msgs))
	for _, row := range rows {
		byMessage[row.MessageID] = append(byMessage[row.MessageID], row.UserID)
	}
	for i := range msgs {
		msgs[i].ReadBy = byMessage[msgs[i].ID]
	}
	return nil
}
