// Package index maintains a SQLite secondary index over the event log.
//
// The index is disposable: Rebuild reads the log up to a checkpoint and
// replaces every table in one transaction, so deleting the database file
// and rebuilding is always a valid recovery. Reads report IndexStale when
// the log holds events the index has not seen, unless the caller accepts
// approximate data.
package index

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - initial schema
const currentSchemaVersion = 1

// timeLayout is fixed width in UTC so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Index is the SQLite-backed secondary index.
type Index struct {
	db   *sql.DB
	path string
	log  *eventlog.Log

	clock      model.Clock
	logger     *bolt.Logger
	staleAfter time.Duration
}

// Option configures an Index.
type Option func(*Index)

// WithClock sets the clock used to stamp rebuilds and judge staleness.
func WithClock(c model.Clock) Option {
	return func(ix *Index) { ix.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *bolt.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// WithStaleAfter sets how long unindexed log data is tolerated after the
// last rebuild before reads report IndexStale. Zero reports any unindexed
// data at once.
func WithStaleAfter(d time.Duration) Option {
	return func(ix *Index) { ix.staleAfter = d }
}

// Open creates or opens the index database at path over log.
//
// The database is configured with:
//   - WAL mode for concurrent reads during a rebuild
//   - NORMAL synchronous mode, since the log is the durable copy
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, log *eventlog.Log, opts ...Option) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	ix := &Index{
		db:    db,
		path:  path,
		log:   log,
		clock: model.SystemClock{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = observe.OrDiscard(ix.logger)
	return ix, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	if ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// Path returns the database file path.
func (ix *Index) Path() string { return ix.path }

// Remove deletes the database at path together with its WAL and shared
// memory files. Missing files are not an error. The index must be closed.
func Remove(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates missing tables and records the schema version.
// It is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("index schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
