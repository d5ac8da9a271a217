package engine

import "github.com/MRamiBalles/SleepRegression/server/internal/domain/rules"

// RestSystem credits the parent with sleep.
type RestSystem struct{}

func NewRestSystem() *RestSystem {
	return &RestSystem{}
}

// OnTimeTick runs after the wake draw, so a kid waking this tick already
// costs the parent this second.
func (rs *RestSystem) OnTimeTick(s *GameState) {
	if rules.CanParentRest(s.Kids, s.ParentLocation) {
		s.IsParentSleeping = true
		s.ParentSleepTime++
		return
	}
	s.IsParentSleeping = false
}
