// Package store provides the SQLite-backed note and link store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/noteweave/internal/apperr"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id                    TEXT PRIMARY KEY,
	type                  TEXT NOT NULL,
	content               TEXT NOT NULL,
	content_hash          TEXT NOT NULL DEFAULT '',
	title                 TEXT NOT NULL DEFAULT '',
	tags                  TEXT NOT NULL DEFAULT '[]',
	process_status        TEXT NOT NULL DEFAULT 'PENDING',
	diagnostic            TEXT NOT NULL DEFAULT '',
	summary               TEXT,
	excerpt               TEXT,
	key_insights          TEXT,
	topics                TEXT,
	sentiment             TEXT,
	embedding             BLOB,
	published_at          INTEGER,
	processing_started_at INTEGER,
	enriched_at           INTEGER,
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(process_status);
CREATE INDEX IF NOT EXISTS idx_notes_content_hash ON notes(content_hash);
CREATE INDEX IF NOT EXISTS idx_notes_created ON notes(created_at DESC);

CREATE TABLE IF NOT EXISTS links (
	from_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	to_id      TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (from_id, to_id),
	CHECK (from_id <> to_id)
);

CREATE INDEX IF NOT EXISTS idx_links_to ON links(to_id);
`

// DB wraps a sql.DB with note store operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return apperr.Unavailable("store: ping", err)
	}
	return nil
}

// SetClock overrides the time source. Intended for tests.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
