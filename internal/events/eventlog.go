// Package events provides the append-only event log of a night session.
// Every state change the engine makes is recorded here before anything
// observes it; the log is the audit trail for storage and live clients.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeTimeTick          EventType = "TIME_TICK"
	EventTypeKidWoke           EventType = "KID_WOKE"
	EventTypeActivityStarted   EventType = "ACTIVITY_STARTED"
	EventTypeActivityCompleted EventType = "ACTIVITY_COMPLETED"
	EventTypeCooldownExpired   EventType = "COOLDOWN_EXPIRED"
	EventTypeParentMoved       EventType = "PARENT_MOVED"
	EventTypeSessionStarted    EventType = "SESSION_STARTED"
	EventTypeSessionPaused     EventType = "SESSION_PAUSED"
	EventTypeSessionResumed    EventType = "SESSION_RESUMED"
	EventTypeSessionComplete   EventType = "SESSION_COMPLETE"
	EventTypeSessionRestarted  EventType = "SESSION_RESTARTED"
	EventTypeSessionAbandoned  EventType = "SESSION_ABANDONED"
)

// ActorSystem marks events produced by the simulation itself rather than by a player action.
const ActorSystem = "SYSTEM"

// ActorParent marks events triggered by the player.
const ActorParent = "PARENT"

// GameEvent represents an immutable record of something that happened in a session.
type GameEvent struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Who performed the action
	TargetID  string      `json:"target_id"` // Kid or room affected (optional)
	Payload   interface{} `json:"payload"`   // Event-specific data
	Tick      int         `json:"tick"`      // Simulated second it happened at
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of game events.
// When a persister is attached, events are written through in append order
// by a single background writer.
type EventLog struct {
	mu     sync.RWMutex
	events []GameEvent

	persister EventPersister
	queue     chan GameEvent
	done      chan struct{}
	closed    bool
	onError   func(GameEvent, error)
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	el := &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
	if persister != nil {
		el.queue = make(chan GameEvent, 1024)
		el.done = make(chan struct{})
		go el.writeThrough()
	}
	return el
}

// OnPersistError registers a callback for failed write-through attempts.
// Must be called before events are appended.
func (el *EventLog) OnPersistError(fn func(GameEvent, error)) {
	el.onError = fn
}

// Append adds a new event to the log. Events are immutable once appended.
// Missing ID and Timestamp are filled in.
func (el *EventLog) Append(event GameEvent) GameEvent {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.queue != nil && !el.closed {
		el.queue <- event
	}
	return event
}

func (el *EventLog) writeThrough() {
	defer close(el.done)
	for e := range el.queue {
		if err := el.persister.Append(e); err != nil && el.onError != nil {
			el.onError(e, err)
		}
	}
}

// Close stops the write-through and waits for queued events to be persisted.
// Events appended afterwards stay in memory only.
func (el *EventLog) Close() {
	el.mu.Lock()
	if el.queue == nil || el.closed {
		el.mu.Unlock()
		return
	}
	el.closed = true
	close(el.queue)
	el.mu.Unlock()

	<-el.done
}

// Len returns the number of events recorded so far.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns the events appended after the first n, and the new cursor.
func (el *EventLog) Since(n int) ([]GameEvent, int) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(el.events) {
		return nil, len(el.events)
	}
	out := make([]GameEvent, len(el.events)-n)
	copy(out, el.events[n:])
	return out, len(el.events)
}

// GetBySession returns all events of one session.
func (el *EventLog) GetBySession(sessionID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of a specific type.
func (el *EventLog) GetByType(eventType EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events.
func (el *EventLog) Replay() []GameEvent {
	out, _ := el.Since(0)
	return out
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
