package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/metrics"
)

const defaultWriteTimeout = 5 * time.Second

// Persister adapts the repositories to events.EventPersister so the event log
// can write through to the ledger. Session lifecycle events rewrite the
// session row and clock ticks move its totals forward.
type Persister struct {
	eventRepo   EventRepository
	sessionRepo SessionRepository
	metrics     *metrics.Collector
	timeout     time.Duration
}

// NewPersister builds a write-through adapter. sessionRepo and m may be nil.
func NewPersister(eventRepo EventRepository, sessionRepo SessionRepository, m *metrics.Collector) *Persister {
	return &Persister{
		eventRepo:   eventRepo,
		sessionRepo: sessionRepo,
		metrics:     m,
		timeout:     defaultWriteTimeout,
	}
}

// Append implements events.EventPersister.
func (p *Persister) Append(event events.GameEvent) error {
	start := time.Now()
	err := p.write(event)
	p.metrics.RecordEventWrite(time.Since(start), err)
	return err
}

func (p *Persister) write(event events.GameEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	record, err := ToRecord(event)
	if err != nil {
		return err
	}
	if err := p.eventRepo.Append(ctx, record); err != nil {
		return err
	}

	if p.sessionRepo == nil {
		return nil
	}
	switch payload := event.Payload.(type) {
	case events.SessionPayload:
		return p.sessionRepo.Upsert(ctx, sessionRecord(event, payload))
	case events.TimeTickPayload:
		return p.sessionRepo.RecordProgress(ctx, event.SessionID, payload.Tick, payload.ParentSleepTime, event.Timestamp)
	}
	return nil
}

// sessionRecord is the session row as of a lifecycle event.
func sessionRecord(event events.GameEvent, sp events.SessionPayload) SessionRecord {
	return SessionRecord{
		SessionID:       event.SessionID,
		Status:          sp.Status,
		TimeElapsed:     sp.TimeElapsed,
		CycleTime:       sp.CycleTime,
		ParentSleepTime: sp.ParentSleepTime,
		TargetSleepTime: sp.TargetSleepTime,
		Rating:          sp.Rating,
		StartedAt:       event.Timestamp,
		UpdatedAt:       event.Timestamp,
	}
}

// ToRecord flattens a domain event into its ledger row.
func ToRecord(event events.GameEvent) (EventRecord, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to marshal payload of %s: %w", event.Type, err)
	}
	return EventRecord{
		ID:        event.ID,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payload,
		Tick:      event.Tick,
	}, nil
}

var _ events.EventPersister = (*Persister)(nil)
