package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitSQLite(":memory:")
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func appendEvent(t *testing.T, p *Persister, sessionID string, tick int, eventType events.EventType, payload interface{}) {
	t.Helper()
	err := p.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		SessionID: sessionID,
		Timestamp: time.UnixMilli(int64(1_700_000_000_000 + tick*1000)),
		Type:      eventType,
		ActorID:   events.ActorSystem,
		Payload:   payload,
		Tick:      tick,
	})
	if err != nil {
		t.Fatalf("Append %s failed: %v", eventType, err)
	}
}

func TestEventRepositoryKeepsAppendOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	// Identical timestamps must not reorder rows.
	ts := time.UnixMilli(1_700_000_000_000)
	types := []string{"SESSION_STARTED", "KID_WOKE", "TIME_TICK", "ACTIVITY_STARTED"}
	for i, et := range types {
		err := repo.Append(ctx, EventRecord{
			ID:        events.GenerateEventID(),
			SessionID: "night-1",
			Timestamp: ts,
			EventType: et,
			ActorID:   "SYSTEM",
			Payload:   []byte(`{"n":1}`),
			Tick:      i,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := repo.Append(ctx, EventRecord{ID: events.GenerateEventID(), SessionID: "night-2", Timestamp: ts, EventType: "TIME_TICK", ActorID: "SYSTEM"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := repo.GetBySessionID(ctx, "night-1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if len(got) != len(types) {
		t.Fatalf("Expected %d events, got %d", len(types), len(got))
	}
	for i, e := range got {
		if e.EventType != types[i] || e.Tick != i {
			t.Errorf("Event %d: expected %s@%d, got %s@%d", i, types[i], i, e.EventType, e.Tick)
		}
		if !e.Timestamp.Equal(ts) {
			t.Errorf("Timestamp not preserved: %v", e.Timestamp)
		}
	}
	if string(got[0].Payload) != `{"n":1}` {
		t.Errorf("Payload not preserved: %s", got[0].Payload)
	}

	ticks, err := repo.GetByEventType(ctx, "night-1", "TIME_TICK")
	if err != nil {
		t.Fatalf("GetByEventType failed: %v", err)
	}
	if len(ticks) != 1 || ticks[0].Tick != 2 {
		t.Errorf("Expected the single night-1 tick, got %+v", ticks)
	}
}

func TestEventRepositoryRejectsDuplicateID(t *testing.T) {
	repo := NewSQLiteEventRepository(openTestDB(t))
	ctx := context.Background()

	e := EventRecord{ID: "dup", SessionID: "night-1", Timestamp: time.Now(), EventType: "TIME_TICK", ActorID: "SYSTEM"}
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	if err := repo.Append(ctx, e); err == nil {
		t.Errorf("Expected duplicate event id to be rejected")
	}
}

func TestSessionRepository(t *testing.T) {
	repo := NewSQLiteSessionRepository(openTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetBySessionID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	started := time.UnixMilli(1_700_000_000_000)
	first := SessionRecord{
		SessionID:       "night-1",
		Status:          "running",
		CycleTime:       30,
		TargetSleepTime: 20,
		StartedAt:       started,
		UpdatedAt:       started,
	}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	done := first
	done.Status = "complete"
	done.TimeElapsed = 30
	done.ParentSleepTime = 17
	done.Rating = "FUNCTIONAL"
	done.StartedAt = started.Add(time.Minute)
	done.UpdatedAt = started.Add(30 * time.Second)
	if err := repo.Upsert(ctx, done); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := repo.GetBySessionID(ctx, "night-1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if got.Status != "complete" || got.ParentSleepTime != 17 || got.Rating != "FUNCTIONAL" {
		t.Errorf("Upsert did not update progress: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt should keep the first write, got %v", got.StartedAt)
	}

	later := SessionRecord{SessionID: "night-2", Status: "running", CycleTime: 30, TargetSleepTime: 20, StartedAt: started, UpdatedAt: started.Add(time.Hour)}
	if err := repo.Upsert(ctx, later); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	recent, err := repo.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].SessionID != "night-2" {
		t.Errorf("Expected night-2 first, got %+v", recent)
	}
}

func TestPersisterRecordsSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	eventRepo := NewSQLiteEventRepository(db)
	sessionRepo := NewSQLiteSessionRepository(db)
	p := NewPersister(eventRepo, sessionRepo, nil)
	ctx := context.Background()

	appendEvent(t, p, "night-1", 0, events.EventTypeSessionStarted, events.SessionPayload{Status: "running", CycleTime: 30, TargetSleepTime: 20})
	appendEvent(t, p, "night-1", 1, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 1, CycleTime: 30, ParentSleeping: true, ParentSleepTime: 1})
	appendEvent(t, p, "night-1", 30, events.EventTypeSessionComplete, events.SessionPayload{
		Status: "complete", Result: "complete", TimeElapsed: 30, CycleTime: 30, ParentSleepTime: 22, TargetSleepTime: 20, Rating: "SORCERY",
	})

	rows, err := eventRepo.GetBySessionID(ctx, "night-1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 ledger rows, got %d", len(rows))
	}

	session, err := sessionRepo.GetBySessionID(ctx, "night-1")
	if err != nil {
		t.Fatalf("session row missing: %v", err)
	}
	if session.Status != "complete" || session.ParentSleepTime != 22 || session.Rating != "SORCERY" {
		t.Errorf("Unexpected session row: %+v", session)
	}
	if !session.StartedAt.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("StartedAt should come from SESSION_STARTED, got %v", session.StartedAt)
	}
}

func TestPersisterKeepsSessionRowCurrent(t *testing.T) {
	db := openTestDB(t)
	sessionRepo := NewSQLiteSessionRepository(db)
	p := NewPersister(NewSQLiteEventRepository(db), sessionRepo, nil)
	ctx := context.Background()

	row := func() *SessionRecord {
		t.Helper()
		s, err := sessionRepo.GetBySessionID(ctx, "night-1")
		if err != nil {
			t.Fatalf("session row missing: %v", err)
		}
		return s
	}

	appendEvent(t, p, "night-1", 0, events.EventTypeSessionStarted, events.SessionPayload{Status: "running", CycleTime: 30, TargetSleepTime: 20})
	for tick := 1; tick <= 5; tick++ {
		appendEvent(t, p, "night-1", tick, events.EventTypeTimeTick, events.TimeTickPayload{Tick: tick, CycleTime: 30, ParentSleeping: true, ParentSleepTime: tick})
	}

	tests := []struct {
		name      string
		tick      int
		eventType events.EventType
		payload   interface{}
		status    string
		elapsed   int
		sleep     int
	}{
		{"mid-night", 0, "", nil, "running", 5, 5},
		{"paused", 5, events.EventTypeSessionPaused, events.SessionPayload{Status: "paused", TimeElapsed: 5, CycleTime: 30, ParentSleepTime: 5, TargetSleepTime: 20}, "paused", 5, 5},
		{"resumed", 5, events.EventTypeSessionResumed, events.SessionPayload{Status: "running", TimeElapsed: 5, CycleTime: 30, ParentSleepTime: 5, TargetSleepTime: 20}, "running", 5, 5},
		{"next tick", 6, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 6, CycleTime: 30, ParentSleepTime: 5}, "running", 6, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.eventType != "" {
				appendEvent(t, p, "night-1", tt.tick, tt.eventType, tt.payload)
			}
			got := row()
			if got.Status != tt.status || got.TimeElapsed != tt.elapsed || got.ParentSleepTime != tt.sleep {
				t.Errorf("Expected %s t=%d sleep=%d, got %+v", tt.status, tt.elapsed, tt.sleep, got)
			}
			if got.TargetSleepTime != 20 || got.CycleTime != 30 {
				t.Errorf("Ticks must not clear the night's constants: %+v", got)
			}
		})
	}

	// A tick for a night that never started leaves no row behind.
	appendEvent(t, p, "night-x", 1, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 1, CycleTime: 30})
	if _, err := sessionRepo.GetBySessionID(ctx, "night-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected no row for night-x, got %v", err)
	}
}

func TestRestartClosesAbandonedNight(t *testing.T) {
	db := openTestDB(t)
	eventRepo := NewSQLiteEventRepository(db)
	sessionRepo := NewSQLiteSessionRepository(db)
	el := events.NewEventLog(NewPersister(eventRepo, sessionRepo, nil))
	eng := engine.NewEngine(el, logger.Discard(), engine.WithManualClock(), engine.WithWakeProbability(0))
	ctx := context.Background()

	eng.SetRunning(true)
	for i := 0; i < 12; i++ {
		eng.Tick()
	}
	abandoned := eng.SessionID()
	fresh := eng.Restart().SessionID
	el.Close()

	old, err := sessionRepo.GetBySessionID(ctx, abandoned)
	if err != nil {
		t.Fatalf("abandoned row missing: %v", err)
	}
	if old.Status != string(engine.StatusAbandoned) || old.TimeElapsed != 12 || old.ParentSleepTime != 12 {
		t.Errorf("Expected abandoned t=12 sleep=12, got %+v", old)
	}

	rebuilt, err := NewReconstructor(eventRepo).RebuildSession(ctx, abandoned)
	if err != nil {
		t.Fatalf("RebuildSession failed: %v", err)
	}
	if rebuilt.Status != old.Status || rebuilt.TimeElapsed != old.TimeElapsed || rebuilt.ParentSleepTime != old.ParentSleepTime {
		t.Errorf("Row and events disagree: row %+v, events %+v", old, rebuilt)
	}

	next, err := sessionRepo.GetBySessionID(ctx, fresh)
	if err != nil {
		t.Fatalf("new night row missing: %v", err)
	}
	if next.Status != string(engine.StatusRunning) || next.TimeElapsed != 0 {
		t.Errorf("Unexpected new night row: %+v", next)
	}

	recent, err := sessionRepo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	running := 0
	for _, s := range recent {
		if s.Status == string(engine.StatusRunning) {
			running++
		}
	}
	if running != 1 {
		t.Errorf("Expected only the new night to be running, got %+v", recent)
	}
}

func TestPersisterSurfacesMarshalErrors(t *testing.T) {
	p := NewPersister(NewSQLiteEventRepository(openTestDB(t)), nil, nil)

	err := p.Append(events.GameEvent{ID: "x", SessionID: "night-1", Type: events.EventTypeTimeTick, Payload: make(chan int)})
	if err == nil {
		t.Errorf("Expected an unmarshalable payload to fail")
	}
}

func TestReconstructor(t *testing.T) {
	db := openTestDB(t)
	eventRepo := NewSQLiteEventRepository(db)
	p := NewPersister(eventRepo, nil, nil)
	r := NewReconstructor(eventRepo)
	ctx := context.Background()

	if _, err := r.RebuildSession(ctx, "night-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for empty ledger, got %v", err)
	}

	appendEvent(t, p, "night-1", 0, events.EventTypeSessionStarted, events.SessionPayload{Status: "running", CycleTime: 30, TargetSleepTime: 20})
	appendEvent(t, p, "night-1", 1, events.EventTypeKidWoke, events.KidWokePayload{Kid: "Baby", Room: "babyRoom", Roll: 0.1})
	appendEvent(t, p, "night-1", 1, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 1, CycleTime: 30})
	appendEvent(t, p, "night-1", 1, events.EventTypeActivityStarted, events.ActivityPayload{Kid: "Baby", Activity: "Soothe", Duration: 1, Cooldown: 15, StartedAt: 1})
	appendEvent(t, p, "night-1", 2, events.EventTypeActivityCompleted, events.ActivityPayload{Kid: "Baby", Activity: "Soothe", StartedAt: 1, CompletedAt: 2})
	appendEvent(t, p, "night-1", 2, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 2, CycleTime: 30, ParentSleepTime: 0})
	appendEvent(t, p, "night-1", 3, events.EventTypeTimeTick, events.TimeTickPayload{Tick: 3, CycleTime: 30, ParentSleeping: true, ParentSleepTime: 1})

	rec, err := r.RebuildSession(ctx, "night-1")
	if err != nil {
		t.Fatalf("RebuildSession failed: %v", err)
	}
	if rec.Status != "running" || rec.TimeElapsed != 3 || rec.ParentSleepTime != 1 || rec.TargetSleepTime != 20 {
		t.Errorf("Unexpected rebuilt session: %+v", rec)
	}

	recap, err := r.GenerateRecap(ctx, "night-1")
	if err != nil {
		t.Fatalf("GenerateRecap failed: %v", err)
	}
	if len(recap) != 4 {
		t.Fatalf("Expected 4 recap lines without ticks, got %d", len(recap))
	}
	if recap[1].Summary != "Baby woke up." || recap[1].Impact != "NEGATIVE" {
		t.Errorf("Unexpected wake recap: %+v", recap[1])
	}
	if recap[3].Summary != "Baby is back asleep after Soothe." || recap[3].Impact != "POSITIVE" {
		t.Errorf("Unexpected completion recap: %+v", recap[3])
	}
}
