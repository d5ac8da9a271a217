package engine

import "github.com/MRamiBalles/SleepRegression/server/internal/events"

// CooldownSystem clears finished cooldowns so activities become startable again.
type CooldownSystem struct{}

func NewCooldownSystem() *CooldownSystem {
	return &CooldownSystem{}
}

// OnTimeTick sweeps every idle activity with a recorded completion.
func (cs *CooldownSystem) OnTimeTick(s *GameState, emit Emitter) {
	for i := range s.Kids {
		kid := &s.Kids[i]
		for j := range kid.Activities {
			a := &kid.Activities[j]
			if a.InProgress || a.CompletedAt == nil {
				continue
			}
			if s.TimeElapsed-*a.CompletedAt < a.Cooldown {
				continue
			}
			a.CompletedAt = nil
			emit(events.EventTypeCooldownExpired, events.ActorSystem, kid.Name, events.CooldownPayload{
				Kid:      kid.Name,
				Activity: a.Name,
			})
		}
	}
}
