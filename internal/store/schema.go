// Package store provides the SQLite-backed record store for articles, health
// records and events.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS articles (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	title     TEXT    NOT NULL DEFAULT '',
	content   TEXT    NOT NULL DEFAULT '',
	url       TEXT    NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS health_data (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL DEFAULT 0,
	type      TEXT    NOT NULL DEFAULT '',
	value1    REAL    NOT NULL DEFAULT 0,
	value2    REAL
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT    NOT NULL DEFAULT '',
	timestamp  INTEGER NOT NULL DEFAULT 0,
	image_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_articles_timestamp ON articles(timestamp);
CREATE INDEX IF NOT EXISTS idx_health_timestamp ON health_data(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// DB wraps a sql.DB with record operations.
type DB struct {
	conn *sql.DB
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
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Wrap uses an already opened connection whose schema is managed elsewhere.
func Wrap(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
