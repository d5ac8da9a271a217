package engine

import (
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
)

// Roller produces uniform draws in [0,1). *rand.Rand from math/rand/v2 satisfies it.
type Roller interface {
	Float64() float64
}

// Emitter receives the events produced while a tick or action is applied.
type Emitter func(eventType events.EventType, actorID, targetID string, payload interface{})

// WakeSystem decides, once per tick, which sleeping kids wake up.
type WakeSystem struct {
	rng         Roller
	probability float64
}

// NewWakeSystem creates a wake system drawing from rng.
func NewWakeSystem(rng Roller, probability float64) *WakeSystem {
	return &WakeSystem{rng: rng, probability: probability}
}

// OnTimeTick draws once per sleeping kid. A kid only wakes if it has
// something to be done for it; otherwise the draw is spent and ignored.
func (ws *WakeSystem) OnTimeTick(s *GameState, emit Emitter) {
	for i := range s.Kids {
		kid := &s.Kids[i]
		if !kid.Asleep {
			continue
		}

		roll := ws.rng.Float64()
		if roll >= ws.probability {
			continue
		}
		if !kid.HasAvailableActivity(s.TimeElapsed) {
			continue
		}

		kid.Asleep = false
		emit(events.EventTypeKidWoke, events.ActorSystem, kid.Name, events.KidWokePayload{
			Kid:  kid.Name,
			Room: string(kid.Room),
			Roll: roll,
		})
	}
}
