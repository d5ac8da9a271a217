package engine

import "github.com/MRamiBalles/SleepRegression/server/internal/domain/household"

// Status is the session-level state machine position.
type Status string

const (
	StatusIdle     Status = "idle"     // Constructed, never started
	StatusRunning  Status = "running"  // Clock active, actions accepted
	StatusPaused   Status = "paused"   // Clock stopped, state frozen
	StatusComplete Status = "complete" // Terminal until restart

	// StatusAbandoned is only written to the ledger, for a night restarted
	// before morning. A live session never holds it.
	StatusAbandoned Status = "abandoned"
)

// Result is the terminal outcome of a session.
type Result string

const (
	ResultNone     Result = ""
	ResultComplete Result = "complete"
)

// GameState is the aggregate root of a night. It is owned by the Engine and
// only ever handed out as a Snapshot.
type GameState struct {
	TimeElapsed      int
	CycleTime        int
	ParentSleepTime  int
	TargetSleepTime  int
	IsParentSleeping bool
	Kids             []household.Kid

	// Active slot: at most one (kid, activity) pair is being performed.
	ActiveKidIndex      *int
	ActiveActivityIndex *int

	ParentLocation household.Room
	Result         Result
	Status         Status
}

// NewGameState returns the state of a fresh, not yet started night.
func NewGameState() GameState {
	return GameState{
		CycleTime:       household.CycleLength,
		TargetSleepTime: household.TargetSleepTime,
		Kids:            household.NewRoster(),
		ParentLocation:  household.RoomParent,
		Status:          StatusIdle,
	}
}

// Clone returns a deep copy so the next tick never writes into a published state.
func (s GameState) Clone() GameState {
	c := s
	c.Kids = make([]household.Kid, len(s.Kids))
	for i, k := range s.Kids {
		c.Kids[i] = k.Clone()
	}
	c.ActiveKidIndex = cloneIndex(s.ActiveKidIndex)
	c.ActiveActivityIndex = cloneIndex(s.ActiveActivityIndex)
	return c
}

// ActiveSlot returns the occupied (kid, activity) pair, if any.
func (s GameState) ActiveSlot() (kid, activity int, ok bool) {
	if s.ActiveKidIndex == nil || s.ActiveActivityIndex == nil {
		return -1, -1, false
	}
	return *s.ActiveKidIndex, *s.ActiveActivityIndex, true
}

func (s *GameState) occupySlot(kid, activity int) {
	s.ActiveKidIndex = &kid
	s.ActiveActivityIndex = &activity
}

func (s *GameState) clearSlot() {
	s.ActiveKidIndex = nil
	s.ActiveActivityIndex = nil
}

func cloneIndex(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
