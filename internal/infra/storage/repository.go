// Package storage provides the persistence layer for the game server.
// It is a write-mostly audit ledger: sessions and their events are recorded,
// but nothing here is ever loaded back into a running engine.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// EventRecord mirrors the domain event structure for persistence.
// The engine never imports this; the Persister translates.
type EventRecord struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventType string          `json:"event_type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	TargetID  string          `json:"target_id" db:"target_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Tick      int             `json:"tick" db:"tick"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetBySessionID retrieves all events of a night, in append order.
	GetBySessionID(ctx context.Context, sessionID string) ([]EventRecord, error)

	// GetByEventType retrieves all events of a specific type within a night.
	GetByEventType(ctx context.Context, sessionID string, eventType string) ([]EventRecord, error)
}

// SessionRecord is the ledger row of one night.
type SessionRecord struct {
	SessionID       string    `json:"session_id" db:"session_id"`
	Status          string    `json:"status" db:"status"`
	TimeElapsed     int       `json:"time_elapsed" db:"time_elapsed"`
	CycleTime       int       `json:"cycle_time" db:"cycle_time"`
	ParentSleepTime int       `json:"parent_sleep_time" db:"parent_sleep_time"`
	TargetSleepTime int       `json:"target_sleep_time" db:"target_sleep_time"`
	Rating          string    `json:"rating,omitempty" db:"rating"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// SessionRepository stores one row per night.
type SessionRepository interface {
	// Upsert inserts the session or updates its progress. StartedAt is kept
	// from the first write.
	Upsert(ctx context.Context, session SessionRecord) error

	// RecordProgress moves the running totals of an existing session forward.
	// Unknown sessions are left alone.
	RecordProgress(ctx context.Context, sessionID string, timeElapsed, parentSleepTime int, at time.Time) error

	// GetBySessionID returns ErrNotFound for unknown sessions.
	GetBySessionID(ctx context.Context, sessionID string) (*SessionRecord, error)

	// Recent lists the most recently updated sessions first.
	Recent(ctx context.Context, limit int) ([]SessionRecord, error)
}
