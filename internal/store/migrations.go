package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the state tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	// Append-only change log read by watchers in other processes.
	`CREATE TABLE IF NOT EXISTS kv_changes (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL DEFAULT '',
		deleted    INTEGER NOT NULL DEFAULT 0,
		origin     TEXT NOT NULL,
		changed_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_changes_changed_at ON kv_changes(changed_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
