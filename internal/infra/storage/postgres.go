// Package storage - postgres.go
// PostgreSQL implementation of the ledger, for deployments that share a database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// InitPostgres connects to PostgreSQL and creates the ledger schema.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	if err := createSchemas(db, postgresSchemas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return db, nil
}

var postgresSchemas = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		time_elapsed INTEGER NOT NULL DEFAULT 0,
		cycle_time INTEGER NOT NULL,
		parent_sleep_time INTEGER NOT NULL DEFAULT 0,
		target_sleep_time INTEGER NOT NULL,
		rating TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS event_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT,
		payload JSONB NOT NULL,
		tick INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_session_id ON event_log(session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);`,
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts a new event into the immutable ledger.
func (r *PostgresEventRepository) Append(ctx context.Context, event EventRecord) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	query := `
		INSERT INTO event_log (id, session_id, timestamp, event_type, actor_id, target_id, payload, tick)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		event.TargetID,
		[]byte(payload),
		event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetBySessionID retrieves all events for a night (the full replay).
func (r *PostgresEventRepository) GetBySessionID(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `
		SELECT id, session_id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		WHERE session_id = $1
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query, sessionID)
}

// GetByEventType retrieves all events of a specific type.
func (r *PostgresEventRepository) GetByEventType(ctx context.Context, sessionID string, eventType string) ([]EventRecord, error) {
	query := `
		SELECT id, session_id, timestamp, event_type, actor_id, target_id, payload, tick
		FROM event_log
		WHERE session_id = $1 AND event_type = $2
		ORDER BY seq ASC
	`

	return r.queryEvents(ctx, query, sessionID, eventType)
}

// queryEvents is a helper to execute queries and scan results.
func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var payload []byte
		var targetID sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.Timestamp,
			&e.EventType,
			&e.ActorID,
			&targetID,
			&payload,
			&e.Tick,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if targetID.Valid {
			e.TargetID = targetID.String
		}
		e.Payload = payload

		events = append(events, e)
	}

	return events, rows.Err()
}

// PostgresSessionRepository implements SessionRepository using PostgreSQL.
type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Upsert(ctx context.Context, s SessionRecord) error {
	now := time.Now()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	query := `
		INSERT INTO sessions (session_id, status, time_elapsed, cycle_time, parent_sleep_time, target_sleep_time, rating, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			time_elapsed = EXCLUDED.time_elapsed,
			cycle_time = EXCLUDED.cycle_time,
			parent_sleep_time = EXCLUDED.parent_sleep_time,
			target_sleep_time = EXCLUDED.target_sleep_time,
			rating = EXCLUDED.rating,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Status, s.TimeElapsed, s.CycleTime, s.ParentSleepTime,
		s.TargetSleepTime, s.Rating, s.StartedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *PostgresSessionRepository) RecordProgress(ctx context.Context, sessionID string, timeElapsed, parentSleepTime int, at time.Time) error {
	query := `
		UPDATE sessions
		SET time_elapsed = $1, parent_sleep_time = $2, updated_at = $3
		WHERE session_id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, timeElapsed, parentSleepTime, at, sessionID); err != nil {
		return fmt.Errorf("failed to record progress of session %s: %w", sessionID, err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*SessionRecord, error) {
	query := `
		SELECT session_id, status, time_elapsed, cycle_time, parent_sleep_time, target_sleep_time, rating, started_at, updated_at
		FROM sessions
		WHERE session_id = $1
	`
	var s SessionRecord
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.SessionID, &s.Status, &s.TimeElapsed, &s.CycleTime, &s.ParentSleepTime,
		&s.TargetSleepTime, &s.Rating, &s.StartedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *PostgresSessionRepository) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `
		SELECT session_id, status, time_elapsed, cycle_time, parent_sleep_time, target_sleep_time, rating, started_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC, session_id
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var s SessionRecord
		if err := rows.Scan(
			&s.SessionID, &s.Status, &s.TimeElapsed, &s.CycleTime, &s.ParentSleepTime,
			&s.TargetSleepTime, &s.Rating, &s.StartedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Ensure the Postgres repositories implement the ledger interfaces
var (
	_ EventRepository   = (*PostgresEventRepository)(nil)
	_ SessionRepository = (*PostgresSessionRepository)(nil)
)
