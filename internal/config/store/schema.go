package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order. PRAGMA user_version records how many
// have run, so entries must only ever be appended.
var migrations = [][]string{
	{
		`CREATE TABLE profiles (
			name TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE preferences (
			profile TEXT NOT NULL REFERENCES profiles(name) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (profile, key)
		)`,
	},
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = len(migrations)

func pragmas(readOnly bool) []string {
	list := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if readOnly {
		return list
	}
	return append(list, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("config: read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("config: database schema version %d is newer than supported %d", current, schemaVersion)
	}

	for version := current; version < schemaVersion; version++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("config: begin migration %d: %w", version+1, err)
		}
		for _, stmt := range migrations[version] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("config: migration %d: %w", version+1, err)
			}
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: record schema version %d: %w", version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("config: commit migration %d: %w", version+1, err)
		}
	}
	return nil
}

func ensureProfile(ctx context.Context, db *sql.DB, profile string) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO profiles (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, profile); err != nil {
		return fmt.Errorf("config: ensure profile %q: %w", profile, err)
	}
	return nil
}
