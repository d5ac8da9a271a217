package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const eventColumns = `id, session_id, timestamp, event_type, actor_id, target_id, payload, tick`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp.UnixMilli(), event.EventType,
		event.ActorID, event.TargetID, string(payload), event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var ts int64
		var payload string
		err := rows.Scan(
			&e.ID, &e.SessionID, &ts, &e.EventType, &e.ActorID,
			&e.TargetID, &payload, &e.Tick,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetBySessionID(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, sessionID string, eventType string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND event_type = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, sessionID, eventType)
}

// ---------------------------------------------------------
// SQLiteSessionRepository
// ---------------------------------------------------------

const sessionColumns = `session_id, status, time_elapsed, cycle_time, parent_sleep_time, target_sleep_time, rating, started_at, updated_at`

type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Upsert(ctx context.Context, s SessionRecord) error {
	now := time.Now()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status=excluded.status,
			time_elapsed=excluded.time_elapsed,
			cycle_time=excluded.cycle_time,
			parent_sleep_time=excluded.parent_sleep_time,
			target_sleep_time=excluded.target_sleep_time,
			rating=excluded.rating,
			updated_at=excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Status, s.TimeElapsed, s.CycleTime, s.ParentSleepTime,
		s.TargetSleepTime, s.Rating, s.StartedAt.UnixMilli(), s.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *SQLiteSessionRepository) RecordProgress(ctx context.Context, sessionID string, timeElapsed, parentSleepTime int, at time.Time) error {
	query := `UPDATE sessions SET time_elapsed = ?, parent_sleep_time = ?, updated_at = ? WHERE session_id = ?`
	if _, err := r.db.ExecContext(ctx, query, timeElapsed, parentSleepTime, at.UnixMilli(), sessionID); err != nil {
		return fmt.Errorf("failed to record progress of session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SQLiteSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return s, nil
}

func (r *SQLiteSessionRepository) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, session_id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteSession(row rowScanner) (*SessionRecord, error) {
	var s SessionRecord
	var started, updated int64
	err := row.Scan(
		&s.SessionID, &s.Status, &s.TimeElapsed, &s.CycleTime, &s.ParentSleepTime,
		&s.TargetSleepTime, &s.Rating, &started, &updated,
	)
	if err != nil {
		return nil, err
	}
	s.StartedAt = time.UnixMilli(started)
	s.UpdatedAt = time.UnixMilli(updated)
	return &s, nil
}

var (
	_ EventRepository   = (*SQLiteEventRepository)(nil)
	_ SessionRepository = (*SQLiteSessionRepository)(nil)
)
