package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// Connect opens a traced Postgres connection and runs migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	sqlDB, err := otelsql.Open("postgres", dsn, otelsql.WithAttributes(attribute.String("db.system", "postgresql")))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the chat schema. The users table belongs to the identity
// subsystem; it is created here only so a fresh database is usable.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        );`,
		`CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('DIRECT', 'GROUP')),
            name TEXT,
            owner_id BIGINT NOT NULL,
            dedup_key TEXT,
            state TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'DELETED', 'RESTORED')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            deleted_at TIMESTAMPTZ,
            restored_at TIMESTAMPTZ,
            last_message_id BIGINT,
            CHECK ((kind = 'DIRECT') = (dedup_key IS NOT NULL))
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rooms_active_direct_key
            ON rooms (dedup_key) WHERE kind = 'DIRECT' AND state <> 'DELETED';`,
		`CREATE INDEX IF NOT EXISTS rooms_dedup_key_idx ON rooms (dedup_key);`,
		`CREATE INDEX IF NOT EXISTS rooms_order_idx ON rooms (last_modified_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS room_participants (
            room_id BIGINT NOT NULL REFERENCES rooms(id),
            user_id BIGINT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS room_participants_user_idx ON room_participants (user_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES rooms(id),
            sender_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            state TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'DELETED', 'RESTORED')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            modified BOOLEAN NOT NULL DEFAULT FALSE,
            last_modified_at TIMESTAMPTZ,
            deleted_at TIMESTAMPTZ,
            restored_at TIMESTAMPTZ,
            sent BOOLEAN NOT NULL DEFAULT TRUE,
            delivered BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS messages_room_order_idx ON messages (room_id, created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS message_reads (
            message_id BIGINT NOT NULL REFERENCES messages(id),
            user_id BIGINT NOT NULL,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS message_reads_user_idx ON message_reads (user_id);`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	slog.Info("database migrations applied", "count", len(migrations))
	return nil
}
