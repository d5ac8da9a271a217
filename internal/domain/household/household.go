// Package household defines the core domain entities of the night: the kids,
// their caregiving activities and the rooms of the house.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package household

// Room identifies a location in the house. The values match the identifiers
// the browser client sends for room clicks.
type Room string

const (
	RoomBaby    Room = "babyRoom"
	RoomToddler Room = "toddlerRoom"
	RoomParent  Room = "parentRoom"
)

// Activity durations in simulated seconds.
const (
	DurationShort  = 1
	DurationMedium = 2
	DurationLong   = 3
)

const (
	CycleLength     = 30   // Seconds in one night cycle
	TargetSleepTime = 20   // Informational goal for the parent
	WakeProbability = 0.15 // Chance per tick that a sleeping kid wakes up
)

// Activity is a timed caregiving action owned by exactly one Kid.
type Activity struct {
	Name       string `json:"name"`
	Duration   int    `json:"duration"` // Seconds needed once started
	Cooldown   int    `json:"cooldown"` // Seconds before it can be started again
	InProgress bool   `json:"in_progress"`

	// StartedAt is set only while the activity is in progress.
	StartedAt *int `json:"started_at,omitempty"`
	// CompletedAt is set while the activity is cooling down.
	CompletedAt *int `json:"completed_at,omitempty"`
}

// Available reports whether the activity can be started at time now.
func (a Activity) Available(now int) bool {
	if a.InProgress {
		return false
	}
	return a.CompletedAt == nil || now-*a.CompletedAt >= a.Cooldown
}

// CooldownRemaining returns how many seconds are left before the activity is
// startable again. Zero when it was never completed or the cooldown elapsed.
func (a Activity) CooldownRemaining(now int) int {
	if a.CompletedAt == nil {
		return 0
	}
	left := a.Cooldown - (now - *a.CompletedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Clone returns a deep copy of the activity.
func (a Activity) Clone() Activity {
	c := a
	c.StartedAt = cloneStamp(a.StartedAt)
	c.CompletedAt = cloneStamp(a.CompletedAt)
	return c
}

// Kid is a caregiving subject living in its own room.
type Kid struct {
	Name       string     `json:"name"`
	Room       Room       `json:"room"`
	Asleep     bool       `json:"asleep"`
	Activities []Activity `json:"activities"`
}

// FirstAvailable returns the index of the first activity, in declaration
// order, that can be started at time now. Returns -1 if none.
func (k Kid) FirstAvailable(now int) int {
	for i, a := range k.Activities {
		if a.Available(now) {
			return i
		}
	}
	return -1
}

// HasAvailableActivity reports whether any activity can be started at now.
func (k Kid) HasAvailableActivity(now int) bool {
	return k.FirstAvailable(now) >= 0
}

// Clone returns a deep copy of the kid and its activities.
func (k Kid) Clone() Kid {
	c := k
	c.Activities = make([]Activity, len(k.Activities))
	for i, a := range k.Activities {
		c.Activities[i] = a.Clone()
	}
	return c
}

// NewRoster creates the fresh set of kids for a new night.
func NewRoster() []Kid {
	return []Kid{
		{
			Name:   "Baby",
			Room:   RoomBaby,
			Asleep: true,
			Activities: []Activity{
				{Name: "Soothe", Duration: DurationShort, Cooldown: 15},
				{Name: "Change Diaper", Duration: DurationMedium, Cooldown: 30},
				{Name: "Give Bottle", Duration: DurationLong, Cooldown: 45},
			},
		},
		{
			Name:   "Toddler",
			Room:   RoomToddler,
			Asleep: true,
			Activities: []Activity{
				{Name: "Fix Blanket", Duration: DurationShort, Cooldown: 20},
				{Name: "Potty Break", Duration: DurationMedium, Cooldown: 35},
				{Name: "Handle Night Terror", Duration: DurationLong, Cooldown: 50},
			},
		},
	}
}

// KidIndexForRoom maps a room to the index of the kid sleeping there.
// The parent's room, and any unknown room, has no kid.
func KidIndexForRoom(kids []Kid, room Room) (int, bool) {
	for i, k := range kids {
		if k.Room == room {
			return i, true
		}
	}
	return -1, false
}

// ParseRoom validates a room identifier coming from a client.
func ParseRoom(s string) (Room, bool) {
	switch r := Room(s); r {
	case RoomBaby, RoomToddler, RoomParent:
		return r, true
	}
	return "", false
}

func cloneStamp(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
