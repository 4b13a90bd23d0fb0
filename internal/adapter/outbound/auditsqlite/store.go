// Package auditsqlite persists audit events in a SQLite database.
// Preferred over the file sink when operators want queryable history
// without shipping logs anywhere.
package auditsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_ver  TEXT NOT NULL,
	ts          TEXT NOT NULL,
	event       TEXT NOT NULL,
	conv        TEXT,
	filter      TEXT,
	decision    TEXT,
	reason      TEXT,
	confidence  REAL,
	indicators  TEXT,
	redacted    TEXT,
	metadata    TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_conv ON audit_events (conv);
`

// Store implements audit.Store over SQLite.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewStore opens (or creates) the database at path and ensures the
// events table exists. SQLite works best with a single connection.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts a batch inside one transaction.
func (s *Store) Append(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit database closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events
			(schema_ver, ts, event, conv, filter, decision, reason, confidence, indicators, redacted, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		metadata := ""
		if e.Metadata != nil {
			data, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal audit metadata: %w", err)
			}
			metadata = string(data)
		}
		_, err := stmt.ExecContext(ctx,
			e.Schema,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			e.ConversationID,
			e.FilterName,
			e.Decision,
			e.Reason,
			e.Confidence,
			strings.Join(e.Indicators, ","),
			e.RedactedContent,
			metadata,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	return tx.Commit()
}

// Flush is a no-op; every Append commits.
func (s *Store) Flush(context.Context) error { return nil }

// Close closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Recent returns the last n events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]audit.Event, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT schema_ver, ts, event, conv, filter, decision, reason, confidence, indicators, redacted, metadata
		FROM audit_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Event
	for rows.Next() {
		var (
			e          audit.Event
			ts         string
			eventType  string
			indicators string
			metadata   string
		)
		if err := rows.Scan(&e.Schema, &ts, &eventType, &e.ConversationID, &e.FilterName,
			&e.Decision, &e.Reason, &e.Confidence, &indicators, &e.RedactedContent, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = audit.EventType(eventType)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
		if indicators != "" {
			e.Indicators = strings.Split(indicators, ",")
		}
		if metadata != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(metadata), &m); err == nil {
				e.Metadata = m
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Compile-time interface verification.
var _ audit.Store = (*Store)(nil)
