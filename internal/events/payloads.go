package events

// TimeTickPayload is the data attached to each TimeTickEvent.
type TimeTickPayload struct {
	Tick            int  `json:"tick"`
	CycleTime       int  `json:"cycle_time"`
	ParentSleeping  bool `json:"parent_sleeping"`
	ParentSleepTime int  `json:"parent_sleep_time"`
}

// KidWokePayload records a successful wake draw.
type KidWokePayload struct {
	Kid  string  `json:"kid"`
	Room string  `json:"room"`
	Roll float64 `json:"roll"`
}

// ActivityPayload describes a caregiving activity starting or completing.
type ActivityPayload struct {
	Kid         string `json:"kid"`
	Room        string `json:"room"`
	Activity    string `json:"activity"`
	Duration    int    `json:"duration"`
	Cooldown    int    `json:"cooldown"`
	StartedAt   int    `json:"started_at"`
	CompletedAt int    `json:"completed_at,omitempty"`
}

// CooldownPayload marks an activity becoming startable again.
type CooldownPayload struct {
	Kid      string `json:"kid"`
	Activity string `json:"activity"`
}

// ParentMovedPayload records the parent changing rooms.
type ParentMovedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SessionPayload is attached to session lifecycle events.
type SessionPayload struct {
	Status          string `json:"status"`
	Result          string `json:"result,omitempty"`
	TimeElapsed     int    `json:"time_elapsed"`
	CycleTime       int    `json:"cycle_time"`
	ParentSleepTime int    `json:"parent_sleep_time"`
	TargetSleepTime int    `json:"target_sleep_time"`
	Rating          string `json:"rating,omitempty"`
}
