package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a catalog from user_version i to i+1.
var migrations = []string{
	schemaSQL,
}

// Store is a plan catalog backed by one SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

type options struct {
	busyTimeout time.Duration
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout sets how long a write waits for a lock held by another
// process. The default is five seconds.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithLogger sets the logger for schema migrations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type pragma struct {
	name  string
	value string
	want  string // value read back, lower case
}

func pragmas(o options) []pragma {
	ms := o.busyTimeout.Milliseconds()
	return []pragma{
		{"journal_mode", "WAL", "wal"},
		{"synchronous", "NORMAL", "1"},
		{"busy_timeout", fmt.Sprint(ms), fmt.Sprint(ms)},
		{"foreign_keys", "ON", "1"},
	}
}

// Open opens the catalog at path, creating the file if needed, and brings
// its schema up to date. Opening an existing catalog is safe.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 5 * time.Second, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// One connection: pragmas are per connection and SQLite has a single
	// writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: o.logger.With("catalog", path)}
	ctx := context.Background()
	if err := s.configure(ctx, pragmas(o)); err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) configure(ctx context.Context, ps []pragma) error {
	for _, p := range ps {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
		got, err := s.pragma(ctx, p.name)
		if err != nil {
			return err
		}
		if strings.ToLower(got) != p.want {
			return fmt.Errorf("pragma %s is %q, want %q", p.name, got, p.want)
		}
	}
	return nil
}

// migrate applies the migrations newer than the catalog's user_version,
// each in its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("catalog schema version %d is newer than supported version %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
		s.logger.Debug("migrated catalog", "version", v+1)
	}
	return nil
}

func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
