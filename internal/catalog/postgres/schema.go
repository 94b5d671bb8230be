package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements is the full catalog DDL. The schema is small enough that
// the service applies it at startup instead of carrying a migration tool.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dataset_catalog (
    dataset_id   TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    display_name TEXT NOT NULL,
    summary      TEXT NOT NULL,
    columns_json JSONB NOT NULL DEFAULT '[]',
    row_count    BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS dataset_catalog_user_idx ON dataset_catalog (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_session (
    session_id TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS chat_session_user_idx ON chat_session (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_turn (
    turn_id     BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL REFERENCES chat_session (session_id) ON DELETE CASCADE,
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    action_json JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS chat_turn_session_idx ON chat_turn (session_id, turn_id)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, statement := range schemaStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply catalog schema: %w", err)
		}
	}
	return nil
}
