package events

import (
	"errors"
	"sync"
	"testing"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []GameEvent
	fail   bool
}

func (p *recordingPersister) Append(e GameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.events = append(p.events, e)
	return nil
}

func TestAppendFillsIdentity(t *testing.T) {
	el := NewEventLog(nil)
	e := el.Append(GameEvent{Type: EventTypeTimeTick, SessionID: "S1"})

	if e.ID == "" {
		t.Errorf("Expected generated event ID")
	}
	if e.Timestamp.IsZero() {
		t.Errorf("Expected timestamp to be set")
	}
	if el.Len() != 1 {
		t.Errorf("Expected 1 event, got %d", el.Len())
	}
}

func TestSinceCursor(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeSessionStarted})
	el.Append(GameEvent{Type: EventTypeTimeTick})

	batch, cursor := el.Since(0)
	if len(batch) != 2 || cursor != 2 {
		t.Fatalf("Expected 2 events and cursor 2, got %d and %d", len(batch), cursor)
	}

	batch, cursor = el.Since(cursor)
	if len(batch) != 0 || cursor != 2 {
		t.Fatalf("Expected empty batch at cursor 2, got %d events, cursor %d", len(batch), cursor)
	}

	el.Append(GameEvent{Type: EventTypeKidWoke})
	batch, cursor = el.Since(cursor)
	if len(batch) != 1 || batch[0].Type != EventTypeKidWoke || cursor != 3 {
		t.Fatalf("Expected the KID_WOKE event only, got %+v (cursor %d)", batch, cursor)
	}
}

func TestReplayReturnsCopy(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeTimeTick, Tick: 1})

	history := el.Replay()
	history[0].Tick = 99

	if el.Replay()[0].Tick != 1 {
		t.Errorf("Replay must not expose the internal slice")
	}
}

func TestFilters(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeTimeTick, SessionID: "A"})
	el.Append(GameEvent{Type: EventTypeKidWoke, SessionID: "A"})
	el.Append(GameEvent{Type: EventTypeTimeTick, SessionID: "B"})

	if got := len(el.GetBySession("A")); got != 2 {
		t.Errorf("Expected 2 events for session A, got %d", got)
	}
	if got := len(el.GetByType(EventTypeTimeTick)); got != 2 {
		t.Errorf("Expected 2 TIME_TICK events, got %d", got)
	}
}

func TestWriteThroughKeepsOrder(t *testing.T) {
	p := &recordingPersister{}
	el := NewEventLog(p)

	for i := 1; i <= 50; i++ {
		el.Append(GameEvent{Type: EventTypeTimeTick, Tick: i})
	}
	el.Close()

	if len(p.events) != 50 {
		t.Fatalf("Expected 50 persisted events, got %d", len(p.events))
	}
	for i, e := range p.events {
		if e.Tick != i+1 {
			t.Fatalf("Event %d persisted out of order: tick %d", i, e.Tick)
		}
	}

	// Appending after Close keeps the event in memory only.
	el.Append(GameEvent{Type: EventTypeTimeTick, Tick: 51})
	if el.Len() != 51 {
		t.Errorf("Expected in-memory log to keep growing after Close")
	}
}

func TestWriteThroughReportsErrors(t *testing.T) {
	p := &recordingPersister{fail: true}
	el := NewEventLog(p)

	var mu sync.Mutex
	failures := 0
	el.OnPersistError(func(GameEvent, error) {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	el.Append(GameEvent{Type: EventTypeTimeTick})
	el.Append(GameEvent{Type: EventTypeTimeTick})
	el.Close()

	if failures != 2 {
		t.Errorf("Expected 2 reported failures, got %d", failures)
	}
}
