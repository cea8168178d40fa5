// Package auditlog records every dispatch attempt (account, model,
// endpoint, outcome, latency) to a local SQLite database for offline
// inspection. It is purely observational: the Dispatcher never reads it
// back to make a routing decision, so a closed or misbehaving Log never
// changes dispatch behavior.
package auditlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS dispatch_attempts (
	id TEXT PRIMARY KEY,
	account TEXT NOT NULL,
	model TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	outcome TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
)`

// Entry is one recorded dispatch attempt against a single endpoint.
type Entry struct {
	Account   string
	Model     string
	Endpoint  string
	Outcome   string
	LatencyMs int64
}

// Log is a handle to the dispatch audit database. A nil *Log is valid:
// every method on it is a no-op, so callers that run without audit logging
// configured don't need a separate code path.
type Log struct {
	db *sql.DB
}

// Open creates (if absent) and opens the SQLite database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Record inserts one dispatch attempt, best-effort. Errors are swallowed:
// a write failure here must never surface as a dispatch failure.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _ = l.db.ExecContext(ctx,
		`INSERT INTO dispatch_attempts (id, account, model, endpoint, outcome, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.Account, e.Model, e.Endpoint, e.Outcome, e.LatencyMs, time.Now().UTC(),
	)
}

// Recent returns the most recent n attempts, newest first, for the
// diagnostic /antigravity/status route.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT account, model, endpoint, outcome, latency_ms FROM dispatch_attempts ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Account, &e.Model, &e.Endpoint, &e.Outcome, &e.LatencyMs); err != nil {
			return nil, err
		}
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
