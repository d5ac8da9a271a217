package sim

import (
	"context"
	"math"
	"sort"

	"github.com/MRamiBalles/SleepRegression/server/internal/domain/rules"
	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
)

// Config describes a batch of nights.
type Config struct {
	Nights          int
	Seed            int64 // night i uses Seed+i
	WakeProbability float64
	Policy          Policy
}

// NightResult captures the outcome of one night.
type NightResult struct {
	SessionID       string     `json:"session_id"`
	Seed            int64      `json:"seed"`
	ParentSleepTime int        `json:"parent_sleep_time"`
	TargetReached   bool       `json:"target_reached"`
	Rating          rules.Tier `json:"rating"`
	Wakeups         int        `json:"wakeups"`
	Activities      int        `json:"activities"`
}

// Summary aggregates a batch.
type Summary struct {
	Policy        string             `json:"policy"`
	Nights        int                `json:"nights"`
	MeanSleep     float64            `json:"mean_sleep"`
	StdDevSleep   float64            `json:"stddev_sleep"`
	MinSleep      int                `json:"min_sleep"`
	MaxSleep      int                `json:"max_sleep"`
	TargetReached int                `json:"target_reached"`
	Ratings       map[rules.Tier]int `json:"ratings"`
	Results       []NightResult      `json:"results,omitempty"`
}

// Runner plays nights on a manually clocked engine.
type Runner struct {
	logger *logger.Logger
}

func NewRunner(log *logger.Logger) *Runner {
	return &Runner{logger: log}
}

// RunNight plays one full night and reports how it went.
func (r *Runner) RunNight(seed int64, wakeProbability float64, policy Policy) NightResult {
	el := events.NewEventLog(nil)
	eng := engine.NewEngine(el, r.logger,
		engine.WithManualClock(),
		engine.WithSeed(seed),
		engine.WithWakeProbability(wakeProbability),
	)

	snap := eng.SetRunning(true)
	for snap.Status == engine.StatusRunning {
		if room, ok := policy.Choose(snap); ok {
			eng.PerformRoomAction(room)
		}
		snap = eng.Tick()
	}

	res := NightResult{
		SessionID:       snap.SessionID,
		Seed:            seed,
		ParentSleepTime: snap.ParentSleepTime,
		TargetReached:   snap.TargetReached,
		Wakeups:         len(el.GetByType(events.EventTypeKidWoke)),
		Activities:      len(el.GetByType(events.EventTypeActivityStarted)),
	}
	if snap.Rating != nil {
		res.Rating = snap.Rating.Tier
	}
	return res
}

// Run plays cfg.Nights nights and summarises them. It stops early, with a
// partial summary, when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, cfg Config) Summary {
	policy := cfg.Policy
	if policy == nil {
		policy = Greedy{}
	}

	results := make([]NightResult, 0, cfg.Nights)
	for i := 0; i < cfg.Nights; i++ {
		if ctx.Err() != nil {
			r.logger.Warn("Simulation interrupted", "played", i, "requested", cfg.Nights)
			break
		}
		res := r.RunNight(cfg.Seed+int64(i), cfg.WakeProbability, policy)
		r.logger.Debug("night", "seed", res.Seed, "sleep", res.ParentSleepTime, "rating", res.Rating)
		results = append(results, res)
	}

	sum := Summarize(results)
	sum.Policy = policy.Name()
	return sum
}

// Summarize aggregates night results.
func Summarize(results []NightResult) Summary {
	sum := Summary{
		Nights:  len(results),
		Ratings: make(map[rules.Tier]int),
		Results: results,
	}
	if len(results) == 0 {
		return sum
	}

	sleeps := make([]int, len(results))
	total := 0
	for i, res := range results {
		sleeps[i] = res.ParentSleepTime
		total += res.ParentSleepTime
		sum.Ratings[res.Rating]++
		if res.TargetReached {
			sum.TargetReached++
		}
	}
	sort.Ints(sleeps)
	sum.MinSleep = sleeps[0]
	sum.MaxSleep = sleeps[len(sleeps)-1]
	sum.MeanSleep = float64(total) / float64(len(results))

	var variance float64
	for _, s := range sleeps {
		d := float64(s) - sum.MeanSleep
		variance += d * d
	}
	sum.StdDevSleep = math.Sqrt(variance / float64(len(results)))
	return sum
}
