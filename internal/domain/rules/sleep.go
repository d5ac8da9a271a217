// Package rules contains the pure calculation logic for game mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "github.com/MRamiBalles/SleepRegression/server/internal/domain/household"

// CanParentRest reports whether the parent accrues sleep this tick:
// every kid asleep and the parent back in their own room.
func CanParentRest(kids []household.Kid, location household.Room) bool {
	if location != household.RoomParent {
		return false
	}
	return AllAsleep(kids)
}

// AllAsleep reports whether no kid is awake.
func AllAsleep(kids []household.Kid) bool {
	for _, k := range kids {
		if !k.Asleep {
			return false
		}
	}
	return true
}

// Tier classifies how well the parent slept over a cycle.
type Tier string

const (
	TierTerrible   Tier = "TERRIBLE"
	TierRough      Tier = "ROUGH"
	TierCoffee     Tier = "COFFEE"
	TierFunctional Tier = "FUNCTIONAL"
	TierSorcery    Tier = "SORCERY"
)

// Rating is the end-of-night verdict shown to the player.
type Rating struct {
	Tier    Tier   `json:"tier"`
	Message string `json:"message"`
}

// RateSleep maps accumulated sleep seconds to a Rating.
func RateSleep(seconds int) Rating {
	switch {
	case seconds < 3:
		return Rating{TierTerrible, "Not great, you're about to have a rough day"}
	case seconds < 6:
		return Rating{TierRough, "Maybe only one person will say 'you look tired'"}
	case seconds < 10:
		return Rating{TierCoffee, "Wow, you just might make it with a few cups of coffee"}
	case seconds < 15:
		return Rating{TierFunctional, "Look at you, practically a functional human being!"}
	default:
		return Rating{TierSorcery, "What sorcery is this? Are you even a parent?"}
	}
}
