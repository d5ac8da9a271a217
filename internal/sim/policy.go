// Package sim plays nights without a browser: a caregiver policy decides
// which room to click, and a runner drives the engine tick by tick.
package sim

import (
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
)

// Policy picks the room to click given the current snapshot.
// ok is false when the policy wants to do nothing this second.
type Policy interface {
	Name() string
	Choose(s engine.Snapshot) (room household.Room, ok bool)
}

// Greedy answers the first awake kid as soon as the parent is free, and walks
// back to bed when everyone is asleep.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

func (Greedy) Choose(s engine.Snapshot) (household.Room, bool) {
	if s.Status != engine.StatusRunning {
		return "", false
	}
	if s.ActiveKidIndex != nil {
		return "", false
	}

	for _, room := range s.AwakeRooms() {
		if canHelp(s, room) {
			return room, true
		}
	}

	if s.ParentLocation != household.RoomParent && allAsleep(s) {
		return household.RoomParent, true
	}
	return "", false
}

// Sleeper never gets up. It is the baseline the other policies are measured against.
type Sleeper struct{}

func (Sleeper) Name() string { return "sleeper" }

func (Sleeper) Choose(engine.Snapshot) (household.Room, bool) { return "", false }

// PolicyByName resolves a command line flag value.
func PolicyByName(name string) (Policy, bool) {
	switch name {
	case "greedy", "":
		return Greedy{}, true
	case "sleeper":
		return Sleeper{}, true
	}
	return nil, false
}

func canHelp(s engine.Snapshot, room household.Room) bool {
	for _, k := range s.Kids {
		if k.Room != room {
			continue
		}
		for _, a := range k.Activities {
			if a.Available {
				return true
			}
		}
	}
	return false
}

func allAsleep(s engine.Snapshot) bool {
	for _, k := range s.Kids {
		if !k.Asleep {
			return false
		}
	}
	return true
}
