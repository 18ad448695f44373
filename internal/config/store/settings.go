package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LoadSettings returns the preferences of the active profile. When keys are
// given only those are selected.
func (s *Store) LoadSettings(ctx context.Context, keys ...string) (map[string]string, error) {
	query := `SELECT key, value FROM preferences WHERE profile = ?`
	args := []any{s.profile}
	if len(keys) > 0 {
		query += " AND key IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",") + ")"
		for _, key := range keys {
			args = append(args, key)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("config: load settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("config: scan settings row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate settings rows: %w", err)
	}
	return result, nil
}

// Setting returns a single value. A missing key yields a NotFoundError.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE profile = ? AND key = ?`, s.profile, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NotFoundError{Entity: "setting", Key: key}
	}
	if err != nil {
		return "", fmt.Errorf("config: load setting %q: %w", key, err)
	}
	return value, nil
}

// SaveSettings upserts values for the active profile in one transaction.
func (s *Store) SaveSettings(ctx context.Context, values map[string]string) error {
	if s.readOnly {
		return fmt.Errorf("config: save settings: %w", ErrReadOnly)
	}
	if len(values) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO preferences (profile, key, value) VALUES (?, ?, ?)
				ON CONFLICT(profile, key) DO UPDATE SET
					value = excluded.value,
					updated_at = CURRENT_TIMESTAMP
			`, s.profile, key, value); err != nil {
				return fmt.Errorf("config: save setting %q: %w", key, err)
			}
		}
		return nil
	})
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if s.readOnly {
		return fmt.Errorf("config: delete setting: %w", ErrReadOnly)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM preferences WHERE profile = ? AND key = ?`, s.profile, key); err != nil {
		return fmt.Errorf("config: delete setting %q: %w", key, err)
	}
	return nil
}
