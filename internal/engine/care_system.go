package engine

import (
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
)

// CareSystem finishes the activity occupying the active slot once its
// duration has elapsed.
type CareSystem struct{}

func NewCareSystem() *CareSystem {
	return &CareSystem{}
}

// OnTimeTick completes the active activity if it is due. Completion puts the
// kid back to sleep, starts the cooldown, frees the slot and sends the parent
// back to bed, all within this tick.
func (cs *CareSystem) OnTimeTick(s *GameState, emit Emitter) {
	k, a, ok := s.ActiveSlot()
	if !ok {
		return
	}

	kid := &s.Kids[k]
	activity := &kid.Activities[a]
	if !activity.InProgress || activity.StartedAt == nil {
		// Slot and activity disagree; free the slot rather than wedge the night.
		s.clearSlot()
		return
	}

	startedAt := *activity.StartedAt
	if s.TimeElapsed-startedAt < activity.Duration {
		return
	}

	now := s.TimeElapsed
	activity.InProgress = false
	activity.StartedAt = nil
	activity.CompletedAt = &now
	kid.Asleep = true
	s.clearSlot()

	emit(events.EventTypeActivityCompleted, events.ActorParent, kid.Name, events.ActivityPayload{
		Kid:         kid.Name,
		Room:        string(kid.Room),
		Activity:    activity.Name,
		Duration:    activity.Duration,
		Cooldown:    activity.Cooldown,
		StartedAt:   startedAt,
		CompletedAt: now,
	})

	if s.ParentLocation != household.RoomParent {
		from := s.ParentLocation
		s.ParentLocation = household.RoomParent
		emit(events.EventTypeParentMoved, events.ActorSystem, string(household.RoomParent), events.ParentMovedPayload{
			From: string(from),
			To:   string(household.RoomParent),
		})
	}
}
