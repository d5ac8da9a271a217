package engine

import (
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/rules"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
)

// Player actions never fail. An action whose preconditions do not hold leaves
// the state untouched and the caller simply gets the unchanged snapshot back.

// PerformRoomAction is what a click on a room means: the parent's room sends
// the parent back to bed, a kid's room starts caring for that kid.
func (e *Engine) PerformRoomAction(room household.Room) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var applied bool
	if room == household.RoomParent {
		applied = e.moveParentLocked()
	} else {
		applied = e.beginActivityLocked(room)
	}

	e.metrics.RecordAction("room", applied)
	if applied {
		e.notifyLocked()
	}
	return e.snapshotLocked()
}

// MoveParentToParentRoom sends the parent back to bed, but only once every
// kid is asleep.
func (e *Engine) MoveParentToParentRoom() Snapshot {
	return e.PerformRoomAction(household.RoomParent)
}

func (e *Engine) moveParentLocked() bool {
	if e.state.Status != StatusRunning {
		return false
	}
	if !rules.AllAsleep(e.state.Kids) {
		return false
	}
	if e.state.ParentLocation == household.RoomParent {
		return false
	}

	from := e.state.ParentLocation
	next := e.state.Clone()
	next.ParentLocation = household.RoomParent
	e.state = next

	e.emitter(next.TimeElapsed)(events.EventTypeParentMoved, events.ActorParent, string(household.RoomParent), events.ParentMovedPayload{
		From: string(from),
		To:   string(household.RoomParent),
	})
	return true
}

// beginActivityLocked starts the first available activity of the kid in room.
func (e *Engine) beginActivityLocked(room household.Room) bool {
	if e.state.Status != StatusRunning {
		return false
	}
	if _, _, busy := e.state.ActiveSlot(); busy {
		return false
	}

	k, ok := household.KidIndexForRoom(e.state.Kids, room)
	if !ok {
		return false
	}
	kid := e.state.Kids[k]
	if kid.Asleep {
		return false
	}

	now := e.state.TimeElapsed
	a := kid.FirstAvailable(now)
	if a < 0 {
		return false
	}

	next := e.state.Clone()
	activity := &next.Kids[k].Activities[a]
	activity.InProgress = true
	activity.StartedAt = &now
	activity.CompletedAt = nil
	next.occupySlot(k, a)

	from := next.ParentLocation
	next.ParentLocation = room
	e.state = next

	emit := e.emitter(now)
	emit(events.EventTypeActivityStarted, events.ActorParent, kid.Name, events.ActivityPayload{
		Kid:       kid.Name,
		Room:      string(room),
		Activity:  activity.Name,
		Duration:  activity.Duration,
		Cooldown:  activity.Cooldown,
		StartedAt: now,
	})
	if from != room {
		emit(events.EventTypeParentMoved, events.ActorParent, string(room), events.ParentMovedPayload{
			From: string(from),
			To:   string(room),
		})
	}
	return true
}
