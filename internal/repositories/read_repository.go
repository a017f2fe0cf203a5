package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ReadRepo implements ReadTracker and UnreadCounter.
type ReadRepo struct {
	db        *sqlx.DB
	batchSize int
}

// NewReadRepo constructs a ReadRepo. batchSize <= 0 selects DefaultReadBatchSize.
func NewReadRepo(db *sqlx.DB, batchSize int) *ReadRepo {
	if batchSize <= 0 {
		batchSize = DefaultReadBatchSize
	}
	return &ReadRepo{db: db, batchSize: batchSize}
}

// MarkRoomRead records userID as a reader of every non-deleted message of
// the room it has not read yet and returns how many receipts were created.
// Each batch commits on its own; a pair inserted concurrently is skipped by
// ON CONFLICT, so a retry after partial failure never duplicates receipts.
func (r *ReadRepo) MarkRoomRead(ctx context.Context, roomID, userID int64) (int, error) {
	var pending []int64
	if err := r.db.SelectContext(ctx, &pending, `SELECT m.id FROM messages m
        WHERE m.room_id = $1 AND m.state <> 'DELETED'
        AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2)
        ORDER BY m.id`, roomID, userID); err != nil {
		return 0, errors.Wrap(err, "readRepo.MarkRoomRead.Pending")
	}

	marked := 0
	for start := 0; start < len(pending); start += r.batchSize {
		end := start + r.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
			res, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
                SELECT unnest($1::bigint[]), $2
                ON CONFLICT (message_id, user_id) DO NOTHING`, pq.Array(batch), userID)
			if err != nil {
				return errors.Wrap(err, "readRepo.MarkRoomRead.Insert")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			marked += int(n)
			return nil
		})
		if err != nil {
			return marked, err
		}
	}
	return marked, nil
}

type unreadRow struct {
	RoomID int64 `db:"room_id"`
	Count  int   `db:"unread"`
}

// UnreadCounts returns, for each of roomIDs, the number of non-deleted
// messages userID has not read. Rooms without unread messages are absent.
func (r *ReadRepo) UnreadCounts(ctx context.Context, userID int64, roomIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}
	var rows []unreadRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT m.room_id, COUNT(*) AS unread FROM messages m
        WHERE m.room_id = ANY($1) AND m.state <> 'DELETED'
        AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2)
        GROUP BY m.room_id`, pq.Array(roomIDs), userID); err != nil {
		return nil, errors.Wrap(err, "readRepo.UnreadCounts.Select")
	}
	for _, row := range rows {
		counts[row.RoomID] = row.Count
	}
	return counts, nil
}
