package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade a result store one user_version at a time. Entry i
// moves a store from version i to version i+1.
var migrations = []func(tx *sql.Tx) error{
	// 1: per-query history reads (results --query).
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_results_query ON results(query_id, batch_id)`)
		return err
	},
}

// schemaVersion is the user_version of a fully migrated store.
var schemaVersion = len(migrations)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// ErrSchemaVersion is returned by a read-only Open of a store whose schema
// this build does not match.
var ErrSchemaVersion = errors.New("result store schema version mismatch")

// Store holds published batch results. The scheduler is its only writer;
// the results command opens it read-only.
type Store struct {
	db *sql.DB
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	readOnly    bool
	busyTimeout time.Duration
}

// ReadOnly opens an existing store without creating or migrating it.
func ReadOnly() Option {
	return func(c *openConfig) { c.readOnly = true }
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *openConfig) { c.busyTimeout = d }
}

// dsn renders the go-sqlite3 connection string. Connection pragmas travel
// in the DSN so every pooled connection gets them.
func (c openConfig) dsn(path string) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(c.busyTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	if c.readOnly {
		// mode=rw refuses to create a missing file; query_only refuses writes.
		q.Set("mode", "rw")
		q.Set("_query_only", "true")
	} else {
		q.Set("mode", "rwc")
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + path + "?" + q.Encode()
}

// Open opens the result store at path. A writable store is created when
// missing and migrated to the current schema; a read-only store must
// already be at the current schema.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openConfig{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", cfg.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to result store %s: %w", path, err)
	}

	if cfg.readOnly {
		err = checkSchema(db)
	} else {
		err = migrate(db)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the database for ad-hoc reads.
func (s *Store) DB() *sql.DB {
	return s.db
}

// QueryScalar runs a single-row, single-column query, such as one produced
// by querysql, and returns its value. SQL NULL is returned as nil.
func (s *Store) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	var v any
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return nil, fmt.Errorf("query scalar: %w", err)
	}
	return v, nil
}

// migrate creates the tables and applies pending migrations in one
// transaction, so a store is never left half-upgraded.
func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create result tables: %w", err)
	}
	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: store is at v%d, this build knows v%d", ErrSchemaVersion, version, schemaVersion)
	}
	for v := version; v < schemaVersion; v++ {
		if err := migrations[v](tx); err != nil {
			return fmt.Errorf("migrate result store to v%d: %w", v+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return tx.Commit()
}

func checkSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: store is at v%d, want v%d (open it with run to migrate)", ErrSchemaVersion, version, schemaVersion)
	}
	return nil
}

// pragma reads one connection setting.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
