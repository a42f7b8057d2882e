package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema creates the recorder tables. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS click_events (
		id          UUID PRIMARY KEY,
		short_code  TEXT        NOT NULL,
		clicked_at  TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		ip_address  TEXT,
		user_agent  TEXT,
		referrer    TEXT,
		country     TEXT,
		extra       JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS click_events_code_time_idx
		ON click_events (short_code, clicked_at DESC)`,
}

// EnsureSchema creates the recorder tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
