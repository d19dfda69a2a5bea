// Package failover defines the append-only audit record written on every
// provider failure during dispatch, and the stores that persist it.
//
// Events are written best-effort by the dispatcher and read by external
// monitoring; this package never deletes or mutates persisted rows.
package failover

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

// Event captures one provider failure and the subsequently attempted
// provider during a single request's dispatch. Events are immutable after
// creation.
type Event struct {
	// FailedProvider is the provider whose attempt (including retries) failed.
	FailedProvider string `json:"failed_provider"`
	// NextProvider is the provider attempted next, or "" when the failed
	// provider was the last in the sequence.
	NextProvider string `json:"next_provider,omitempty"`
	// Reason is the free-text failure description.
	Reason string `json:"reason"`
	// RequestID correlates all events of one dispatch.
	RequestID string `json:"request_id"`
	// OccurredAt is the event creation time.
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists failover events.
type Store interface {
	Append(ctx context.Context, ev Event) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// NoopStore ignores all writes and returns no events.
type NoopStore struct{}

func (NoopStore) Append(_ context.Context, _ Event) error          { return nil }
func (NoopStore) Recent(_ context.Context, _ int) ([]Event, error) { return nil, nil }

// MemoryStore keeps events in memory. Useful for tests and embedded setups
// that do not need durable audit records.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// SQLStore persists events to SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteStore creates a SQLite-backed event store. dsn can be a file path
// or a SQLite DSN; it defaults to a local file when empty.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "dispatch-failovers.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failover store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a Postgres-backed event store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres failover store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s failover store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS failover_events (
	id INTEGER PRIMARY KEY,
	failed_provider TEXT NOT NULL,
	successful_provider TEXT,
	reason TEXT,
	request_id TEXT,
	occurred_at TIMESTAMP NOT NULL
);`
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS failover_events (
	id BIGSERIAL PRIMARY KEY,
	failed_provider TEXT NOT NULL,
	successful_provider TEXT,
	reason TEXT,
	request_id TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize failover schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	query := `INSERT INTO failover_events(failed_provider, successful_provider, reason, request_id, occurred_at)
	VALUES(?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = `INSERT INTO failover_events(failed_provider, successful_provider, reason, request_id, occurred_at)
		VALUES($1, $2, $3, $4, $5)`
	}

	_, err := s.db.ExecContext(ctx, query,
		ev.FailedProvider,
		ev.NextProvider,
		ev.Reason,
		ev.RequestID,
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("write failover event: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT failed_provider, successful_provider, reason, request_id, occurred_at
	FROM failover_events ORDER BY id DESC LIMIT ?`
	if s.dialect == "postgres" {
		query = `SELECT failed_provider, successful_provider, reason, request_id, occurred_at
		FROM failover_events ORDER BY id DESC LIMIT $1`
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("read failover events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.FailedProvider, &ev.NextProvider, &ev.Reason, &ev.RequestID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan failover event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
