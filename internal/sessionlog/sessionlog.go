// Package sessionlog is an optional, SQLite-backed record of connection
// lifecycle events (handshake success/failure, heartbeat loss, teardown),
// for post-hoc diagnosis of a session after the fact. It is off by default;
// an endpoint with no Log configured simply never calls into this package.
//
// Grounded on the teacher's database/sql + modernc.org/sqlite usage in
// internal/plex/dvr.go, adapted from Plex DVR metadata rows to connection
// events.
package sessionlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// EventKind enumerates the connection lifecycle events worth recording.
type EventKind string

const (
	EventHandshakeOK     EventKind = "handshake_ok"
	EventHandshakeFailed EventKind = "handshake_failed"
	EventHeartbeatLost   EventKind = "heartbeat_lost"
	EventDisconnected    EventKind = "disconnected"
)

// Log is a handle to the session-event database. Safe for concurrent use
// (database/sql pools its own connections).
type Log struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path with the events schema,
// and returns a Log ready to accept Record calls.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	role TEXT NOT NULL,
	kind TEXT NOT NULL,
	peer TEXT NOT NULL,
	detail TEXT NOT NULL,
	at_unix_ms INTEGER NOT NULL
)`

// Record inserts one lifecycle event.
func (l *Log) Record(role, peer string, kind EventKind, detail string, at time.Time) error {
	if l == nil {
		return nil
	}
	_, err := l.db.Exec(
		`INSERT INTO events (role, kind, peer, detail, at_unix_ms) VALUES (?, ?, ?, ?, ?)`,
		role, string(kind), peer, detail, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sessionlog: record %s: %w", kind, err)
	}
	return nil
}

// Event is one row as returned by Recent.
type Event struct {
	Role   string
	Kind   EventKind
	Peer   string
	Detail string
	At     time.Time
}

// Recent returns the last n events, most recent first.
func (l *Log) Recent(n int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT role, kind, peer, detail, at_unix_ms FROM events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: query recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		var atMs int64
		if err := rows.Scan(&e.Role, &kind, &e.Peer, &e.Detail, &atMs); err != nil {
			return nil, fmt.Errorf("sessionlog: scan: %w", err)
		}
		e.Kind = EventKind(kind)
		e.At = time.UnixMilli(atMs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
