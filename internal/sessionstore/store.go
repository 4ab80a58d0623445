// Package sessionstore persists a lifecycle ledger of sessions to SQLite,
// reduced from the teacher's multi-table, versioned-migration database to
// the single table this repo needs.
package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one row of the sessions ledger: a session's full observed
// lifetime, stamped at creation and again at close.
type Record struct {
	ID          string
	CreatedAt   time.Time
	ClosedAt    *time.Time
	PeakClients int
}

// Store records session lifecycle events. A nil *Store is a legal no-op,
// so SessionManager can be constructed without persistence (tests,
// --no-persist) without special-casing every call site.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates a SQLite database at path, then
// returns a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sessionstore: database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessionstore: creating database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: opening database at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sessionstore: pinging database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	closed_at TEXT,
	peak_clients INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sessionstore: running schema migration: %w", err)
	}
	return nil
}

// RecordCreated inserts a new ledger row with closed_at left null.
func (s *Store) RecordCreated(ctx context.Context, id string, createdAt time.Time) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, created_at, closed_at, peak_clients) VALUES (?, ?, NULL, 0)`,
		id, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sessionstore: recording created session %q: %w", id, err)
	}
	return nil
}

// RecordClosed stamps closed_at and the peak concurrent client count
// observed over the session's lifetime.
func (s *Store) RecordClosed(ctx context.Context, id string, closedAt time.Time, peakClients int) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET closed_at = ?, peak_clients = ? WHERE id = ?`,
		closedAt.UTC().Format(time.RFC3339Nano), peakClients, id)
	if err != nil {
		return fmt.Errorf("sessionstore: recording closed session %q: %w", id, err)
	}
	return nil
}

// Recent returns up to limit SessionRecords, most recently created first,
// including sessions that are no longer live.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, closed_at, peak_clients FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: querying recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var createdRaw string
		var closedRaw sql.NullString
		if err := rows.Scan(&rec.ID, &createdRaw, &closedRaw, &rec.PeakClients); err != nil {
			return nil, fmt.Errorf("sessionstore: scanning session row: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: parsing created_at %q: %w", createdRaw, err)
		}
		if closedRaw.Valid {
			t, err := time.Parse(time.RFC3339Nano, closedRaw.String)
			if err != nil {
				return nil, fmt.Errorf("sessionstore: parsing closed_at %q: %w", closedRaw.String, err)
			}
			rec.ClosedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle. Safe to call on a nil
// *Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
