package engine

import (
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/rules"
)

// ActivityView is the read-only rendering of an Activity.
type ActivityView struct {
	Name              string `json:"name"`
	Duration          int    `json:"duration"`
	Cooldown          int    `json:"cooldown"`
	InProgress        bool   `json:"in_progress"`
	StartedAt         *int   `json:"started_at"`
	CompletedAt       *int   `json:"completed_at"`
	Available         bool   `json:"available"`
	CooldownRemaining int    `json:"cooldown_remaining"`
}

// KidView is the read-only rendering of a Kid.
type KidView struct {
	Name       string         `json:"name"`
	Room       household.Room `json:"room"`
	Asleep     bool           `json:"asleep"`
	Activities []ActivityView `json:"activities"`
}

// Snapshot is what the renderer and the input layer get to see.
// It shares no memory with the engine's state.
type Snapshot struct {
	SessionID           string         `json:"session_id"`
	Status              Status         `json:"status"`
	TimeElapsed         int            `json:"time_elapsed"`
	CycleTime           int            `json:"cycle_time"`
	TimeRemaining       int            `json:"time_remaining"`
	ParentSleepTime     int            `json:"parent_sleep_time"`
	TargetSleepTime     int            `json:"target_sleep_time"`
	TargetReached       bool           `json:"target_reached"`
	IsParentSleeping    bool           `json:"is_parent_sleeping"`
	Kids                []KidView      `json:"kids"`
	ActiveKidIndex      *int           `json:"active_kid_index"`
	ActiveActivityIndex *int           `json:"active_activity_index"`
	ParentLocation      household.Room `json:"parent_location"`
	SessionResult       Result         `json:"session_result"`
	Rating              *rules.Rating  `json:"rating,omitempty"`
}

// NewSnapshot renders a state for outside consumption.
func NewSnapshot(sessionID string, s GameState) Snapshot {
	now := s.TimeElapsed
	snap := Snapshot{
		SessionID:           sessionID,
		Status:              s.Status,
		TimeElapsed:         now,
		CycleTime:           s.CycleTime,
		TimeRemaining:       max(s.CycleTime-now, 0),
		ParentSleepTime:     s.ParentSleepTime,
		TargetSleepTime:     s.TargetSleepTime,
		TargetReached:       s.ParentSleepTime >= s.TargetSleepTime,
		IsParentSleeping:    s.IsParentSleeping,
		Kids:                make([]KidView, len(s.Kids)),
		ActiveKidIndex:      cloneIndex(s.ActiveKidIndex),
		ActiveActivityIndex: cloneIndex(s.ActiveActivityIndex),
		ParentLocation:      s.ParentLocation,
		SessionResult:       s.Result,
	}

	for i, k := range s.Kids {
		kv := KidView{
			Name:       k.Name,
			Room:       k.Room,
			Asleep:     k.Asleep,
			Activities: make([]ActivityView, len(k.Activities)),
		}
		for j, a := range k.Activities {
			a = a.Clone()
			kv.Activities[j] = ActivityView{
				Name:              a.Name,
				Duration:          a.Duration,
				Cooldown:          a.Cooldown,
				InProgress:        a.InProgress,
				StartedAt:         a.StartedAt,
				CompletedAt:       a.CompletedAt,
				Available:         a.Available(now),
				CooldownRemaining: a.CooldownRemaining(now),
			}
		}
		snap.Kids[i] = kv
	}

	if s.Result == ResultComplete {
		r := rules.RateSleep(s.ParentSleepTime)
		snap.Rating = &r
	}
	return snap
}

// InProgressCount returns how many activities are running. Always 0 or 1.
func (s Snapshot) InProgressCount() int {
	n := 0
	for _, k := range s.Kids {
		for _, a := range k.Activities {
			if a.InProgress {
				n++
			}
		}
	}
	return n
}

// AwakeRooms lists the rooms of kids that are awake and not being cared for.
func (s Snapshot) AwakeRooms() []household.Room {
	var rooms []household.Room
	for i, k := range s.Kids {
		if k.Asleep {
			continue
		}
		if s.ActiveKidIndex != nil && *s.ActiveKidIndex == i {
			continue
		}
		rooms = append(rooms, k.Room)
	}
	return rooms
}
