// Package storage - reconstructor.go
// Night Recap: summarises a finished or running night from the ledger.
// The result is for people to read; it is never fed back into an engine.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MRamiBalles/SleepRegression/server/internal/events"
)

// Reconstructor reads a session's events back out of the ledger.
// This is used for:
// 1. The "Night Recap" screen after a session
// 2. Repairing a session row whose lifecycle write failed
// 3. Auditing and debugging
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new ledger reader.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RecapEvent is a simplified event for the "Night Recap" screen.
type RecapEvent struct {
	Tick      int    `json:"tick"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildSession derives the session row from the session's events alone.
func (r *Reconstructor) RebuildSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	history, err := r.eventRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for session: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}

	rec := &SessionRecord{
		SessionID: sessionID,
		StartedAt: history[0].Timestamp,
	}
	for _, e := range history {
		rec.UpdatedAt = e.Timestamp
		if err := r.applyEvent(rec, e); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// GenerateRecap lists what happened during a night, skipping the clock ticks.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sessionID string) ([]RecapEvent, error) {
	history, err := r.eventRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent
	for _, e := range history {
		if e.EventType == string(events.EventTypeTimeTick) {
			continue
		}
		recap = append(recap, RecapEvent{
			Tick:      e.Tick,
			EventType: e.EventType,
			Summary:   SummarizeEvent(e),
			Impact:    EventImpact(e),
		})
	}
	return recap, nil
}

// applyEvent folds one ledger row into the session record.
func (r *Reconstructor) applyEvent(rec *SessionRecord, e EventRecord) error {
	switch events.EventType(e.EventType) {
	case events.EventTypeTimeTick:
		var p events.TimeTickPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
		}
		rec.TimeElapsed = p.Tick
		rec.CycleTime = p.CycleTime
		rec.ParentSleepTime = p.ParentSleepTime
	case events.EventTypeSessionStarted, events.EventTypeSessionPaused, events.EventTypeSessionResumed,
		events.EventTypeSessionComplete, events.EventTypeSessionRestarted, events.EventTypeSessionAbandoned:
		var p events.SessionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
		}
		rec.Status = p.Status
		rec.TimeElapsed = p.TimeElapsed
		rec.CycleTime = p.CycleTime
		rec.ParentSleepTime = p.ParentSleepTime
		rec.TargetSleepTime = p.TargetSleepTime
		if p.Rating != "" {
			rec.Rating = p.Rating
		}
	}
	return nil
}

// SummarizeEvent creates a human-readable summary.
func SummarizeEvent(e EventRecord) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeKidWoke:
		var p events.KidWokePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s woke up.", p.Kid)
		}
	case events.EventTypeActivityStarted:
		var p events.ActivityPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("Started %s for %s.", p.Activity, p.Kid)
		}
	case events.EventTypeActivityCompleted:
		var p events.ActivityPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s is back asleep after %s.", p.Kid, p.Activity)
		}
	case events.EventTypeCooldownExpired:
		var p events.CooldownPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s can be used on %s again.", p.Activity, p.Kid)
		}
	case events.EventTypeParentMoved:
		var p events.ParentMovedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("Parent went from %s to %s.", p.From, p.To)
		}
	case events.EventTypeSessionStarted:
		return "The night began."
	case events.EventTypeSessionPaused:
		return "The night was paused."
	case events.EventTypeSessionResumed:
		return "The night resumed."
	case events.EventTypeSessionRestarted:
		return "A new night began."
	case events.EventTypeSessionAbandoned:
		var p events.SessionPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("Night abandoned after %d seconds, %d of them asleep.", p.TimeElapsed, p.ParentSleepTime)
		}
	case events.EventTypeSessionComplete:
		var p events.SessionPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("Morning. %d seconds of sleep, rated %s.", p.ParentSleepTime, p.Rating)
		}
	}
	return "Something happened in the night."
}

// EventImpact classifies the event impact.
func EventImpact(e EventRecord) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeKidWoke:
		return "NEGATIVE"
	case events.EventTypeActivityCompleted:
		return "POSITIVE"
	default:
		return "NEUTRAL"
	}
}
