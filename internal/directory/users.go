// Package directory reads the identity subsystem's user projection.
package directory

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"chat-core/internal/models"
)

// Users looks up users in the shared users table.
type Users struct {
	db *sqlx.DB
}

// NewUsers constructs a Users directory.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// UserExists reports whether an active user with id exists.
func (u *Users) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := u.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active)`, id)
	return exists, errors.Wrap(err, "directory.UserExists")
}

// BulkUsers fetches multiple users in one query. Unknown ids are skipped.
func (u *Users) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}
	var users []models.UserSummary
	err := u.db.SelectContext(ctx, &users, `SELECT id, first_name, last_name FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "directory.BulkUsers")
	}
	return users, nil
}
