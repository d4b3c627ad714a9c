package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS records (
		scope_id       TEXT    NOT NULL,
		id             TEXT    NOT NULL,
		owner_id       TEXT    NOT NULL,
		kind           TEXT    NOT NULL,
		text_primary   TEXT    NOT NULL,
		text_secondary TEXT    NOT NULL DEFAULT '',
		visibility     TEXT    NOT NULL DEFAULT '',
		channel_id     TEXT    NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL,
		signals        TEXT    NOT NULL DEFAULT '{}',
		PRIMARY KEY (scope_id, id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_recent ON records(scope_id, created_at DESC, id)`,

	`CREATE INDEX IF NOT EXISTS idx_records_owner ON records(scope_id, owner_id)`,

	`CREATE TABLE IF NOT EXISTS record_vectors (
		scope_id  TEXT NOT NULL,
		record_id TEXT NOT NULL,
		channel   TEXT NOT NULL,
		vec       BLOB NOT NULL,
		PRIMARY KEY (scope_id, channel, record_id)
	)`,

	`CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT    NOT NULL,
		text       TEXT    NOT NULL DEFAULT '',
		at         INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
