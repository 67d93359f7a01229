// Package storage provides SQLite persistence for settings and history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the controller's SQLite handle. It is safe for concurrent use.
type DB struct {
	*sql.DB
	log zerolog.Logger
}

type dbOptions struct {
	busyTimeout time.Duration
	maxOpen     int
	journalMode string
}

// Option tunes how Open configures the connection pool.
type Option func(*dbOptions)

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *dbOptions) {
		o.busyTimeout = d
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *dbOptions) {
		if n > 0 {
			o.maxOpen = n
		}
	}
}

// WithJournalMode overrides the SQLite journal mode (WAL by default).
func WithJournalMode(mode string) Option {
	return func(o *dbOptions) {
		o.journalMode = mode
	}
}

// Open opens the database file at path, creating its directory, and applies
// pending migrations.
func Open(ctx context.Context, path string, log zerolog.Logger, opts ...Option) (*DB, error) {
	o := dbOptions{busyTimeout: 5 * time.Second, maxOpen: 4, journalMode: "WAL"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(o.maxOpen)
	sqlDB.SetMaxIdleConns(max(o.maxOpen/2, 1))

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &DB{DB: sqlDB, log: log.With().Str("component", "storage").Logger()}
	if _, err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string, o dbOptions) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", o.journalMode)
	q.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	q.Set("_synchronous", "NORMAL")
	return "file:" + path + "?" + q.Encode()
}

// Transaction runs fn in a transaction bound to ctx. The transaction is
// committed only when fn returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
