// Package store persists voxflux preferences in a per-instance SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nupi-ai/voxflux/internal/config"
)

const (
	defaultBusyTimeout = 5 * time.Second
	openTimeout        = 5 * time.Second
)

// ErrReadOnly is returned by writes against a store opened read-only.
var ErrReadOnly = errors.New("store opened read-only")

// Options describes how to open a store.
type Options struct {
	InstanceName string // defaults to config.DefaultInstance
	ProfileName  string // defaults to config.DefaultProfile
	DBPath       string // overrides the instance config.db, mostly for tests
	ReadOnly     bool
}

// Store reads and writes the preferences of one profile.
type Store struct {
	db       *sql.DB
	instance string
	profile  string
	path     string
	readOnly bool
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Open opens (creating and migrating when writable) the preferences
// database of an instance.
func Open(opts Options) (*Store, error) {
	s := &Store{
		instance: opts.InstanceName,
		profile:  opts.ProfileName,
		path:     opts.DBPath,
		readOnly: opts.ReadOnly,
	}
	if s.instance == "" {
		s.instance = config.DefaultInstance
	}
	if s.profile == "" {
		s.profile = config.DefaultProfile
	}
	if s.path == "" {
		paths, err := config.EnsureInstanceDirs(s.instance)
		if err != nil {
			return nil, fmt.Errorf("config: ensure instance directories: %w", err)
		}
		s.path = paths.ConfigDB
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("config: open sqlite store: %w", err)
	}
	// One connection keeps the pragmas applied and serialises writers.
	db.SetMaxOpenConns(1)
	s.db = db

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) dsn() string {
	if s.readOnly {
		return fmt.Sprintf("file:%s?mode=ro", s.path)
	}
	return s.path
}

func (s *Store) init(ctx context.Context) error {
	for _, pragma := range pragmas(s.readOnly) {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("config: apply pragma %q: %w", pragma, err)
		}
	}
	if s.readOnly {
		return nil
	}
	if err := migrate(ctx, s.db); err != nil {
		return err
	}
	return ensureProfile(ctx, s.db, s.profile)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InstanceName returns the instance the store belongs to.
func (s *Store) InstanceName() string { return s.instance }

// ProfileName returns the profile reads and writes are scoped to.
func (s *Store) ProfileName() string { return s.profile }

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string { return s.path }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("config: rollback failed after %v: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
