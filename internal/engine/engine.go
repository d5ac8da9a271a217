package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/domain/rules"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/metrics"
)

// Engine is the central orchestrator: it owns the night's state, wires the
// tick systems to the clock and records every change in the event log.
type Engine struct {
	mu sync.Mutex

	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	// Clock wiring. clock is nil when ticks are driven manually.
	ctx          context.Context
	clock        *Clock
	clockEpoch   uint64
	tickInterval time.Duration
	manualClock  bool

	// Sub-systems, applied in this order every tick
	wakeSystem     *WakeSystem
	careSystem     *CareSystem
	cooldownSystem *CooldownSystem
	restSystem     *RestSystem

	rng             Roller
	wakeProbability float64

	// State
	sessionID string
	state     GameState
	listeners []func(Snapshot)
}

// Option customises an Engine.
type Option func(*Engine)

// WithRoller injects the random source used for wake draws.
func WithRoller(r Roller) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSeed makes wake draws reproducible. Every seed, zero included, names
// one sequence; leave the option out for a clock-seeded engine.
func WithSeed(seed int64) Option {
	return WithRoller(rand.New(rand.NewPCG(uint64(seed), 0)))
}

// WithWakeProbability overrides the per-tick wake chance. Tests force 0 or 1.
func WithWakeProbability(p float64) Option {
	return func(e *Engine) { e.wakeProbability = p }
}

// WithTickInterval sets the wall time between ticks.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithManualClock disables the wall clock; ticks only happen through Tick.
func WithManualClock() Option {
	return func(e *Engine) { e.manualClock = true }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine initializes the core game systems and dependencies.
// The session starts Idle; call SetRunning(true) to begin the night.
func NewEngine(eventLog *events.EventLog, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		eventLog:        eventLog,
		logger:          log,
		ctx:             context.Background(),
		tickInterval:    TickRate,
		wakeProbability: household.WakeProbability,
		rng:             rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		sessionID:       newSessionID(),
		state:           NewGameState(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wakeSystem = NewWakeSystem(e.rng, e.wakeProbability)
	e.careSystem = NewCareSystem()
	e.cooldownSystem = NewCooldownSystem()
	e.restSystem = NewRestSystem()

	if !e.manualClock {
		e.clock = NewClock(e.tickInterval, e.onClockTick)
	}
	return e
}

// Start binds the engine to ctx: the clock never outlives it.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	e.logger.Info("Starting night engine", "session", e.SessionID(), "tick", e.tickInterval)

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.stopClockLocked()
		e.mu.Unlock()
		e.logger.Info("Night engine stopped.")
	}()
}

// OnUpdate registers a listener called with every new snapshot.
// Listeners run while the engine is locked: they must not block or call back
// into the engine.
func (e *Engine) OnUpdate(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// SessionID returns the identifier of the current night.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// ClockRunning reports whether wall-clock ticks are being delivered.
func (e *Engine) ClockRunning() bool {
	return e.clock != nil && e.clock.Running()
}

// Tick applies one simulated second if the session is running.
// The clock calls this once per interval; headless runners and tests call it directly.
func (e *Engine) Tick() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickLocked()
	return e.snapshotLocked()
}

func (e *Engine) onClockTick(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A tick scheduled before the last Stop must not leak into the session.
	if epoch != e.clockEpoch {
		return
	}
	e.tickLocked()
}

func (e *Engine) tickLocked() {
	if e.state.Status != StatusRunning {
		return
	}
	start := time.Now()

	next := e.state.Clone()
	next.TimeElapsed++
	emit := e.emitter(next.TimeElapsed)

	e.wakeSystem.OnTimeTick(&next, emit)
	e.careSystem.OnTimeTick(&next, emit)
	e.cooldownSystem.OnTimeTick(&next, emit)
	e.restSystem.OnTimeTick(&next)

	emit(events.EventTypeTimeTick, events.ActorSystem, "", events.TimeTickPayload{
		Tick:            next.TimeElapsed,
		CycleTime:       next.CycleTime,
		ParentSleeping:  next.IsParentSleeping,
		ParentSleepTime: next.ParentSleepTime,
	})

	if next.TimeElapsed >= next.CycleTime {
		next.Status = StatusComplete
		next.Result = ResultComplete
	}
	e.state = next

	if next.Status == StatusComplete {
		e.stopClockLocked()
		rating := rules.RateSleep(next.ParentSleepTime)
		emit(events.EventTypeSessionComplete, events.ActorSystem, "", e.sessionPayload(string(rating.Tier)))
		e.metrics.RecordSessionComplete(next.ParentSleepTime)
		e.logger.Info("Night complete", "session", e.sessionID, "sleep", next.ParentSleepTime, "rating", rating.Tier)
	}

	e.metrics.RecordTick(time.Since(start))
	e.notifyLocked()
}

// SetRunning toggles between Running and Paused. Starting an Idle session
// begins the night. A completed session only accepts Restart.
func (e *Engine) SetRunning(running bool) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := false
	switch {
	case running && e.state.Status == StatusIdle:
		e.state.Status = StatusRunning
		e.startClockLocked()
		e.emitter(e.state.TimeElapsed)(events.EventTypeSessionStarted, events.ActorParent, "", e.sessionPayload(""))
		applied = true
	case running && e.state.Status == StatusPaused:
		e.state.Status = StatusRunning
		e.startClockLocked()
		e.emitter(e.state.TimeElapsed)(events.EventTypeSessionResumed, events.ActorParent, "", e.sessionPayload(""))
		applied = true
	case !running && e.state.Status == StatusRunning:
		e.state.Status = StatusPaused
		e.stopClockLocked()
		e.emitter(e.state.TimeElapsed)(events.EventTypeSessionPaused, events.ActorParent, "", e.sessionPayload(""))
		applied = true
	}

	e.metrics.RecordAction("set_running", applied)
	if applied {
		e.notifyLocked()
	}
	return e.snapshotLocked()
}

// Restart throws the current night away and starts a fresh one immediately.
// Accepted from any state. A night that had started but not finished is
// logged as SESSION_ABANDONED under its own id before the new one opens.
func (e *Engine) Restart() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.sessionID
	e.stopClockLocked()

	if e.state.Status == StatusRunning || e.state.Status == StatusPaused {
		closing := e.sessionPayload("")
		closing.Status = string(StatusAbandoned)
		e.emitter(e.state.TimeElapsed)(events.EventTypeSessionAbandoned, events.ActorParent, "", closing)
	}

	e.sessionID = newSessionID()
	e.state = NewGameState()
	e.state.Status = StatusRunning
	e.startClockLocked()

	e.emitter(0)(events.EventTypeSessionRestarted, events.ActorParent, previous, e.sessionPayload(""))
	e.logger.Info("Night restarted", "session", e.sessionID, "previous", previous)

	e.metrics.RecordAction("restart", true)
	e.notifyLocked()
	return e.snapshotLocked()
}

func (e *Engine) startClockLocked() {
	if e.clock == nil {
		return
	}
	e.clockEpoch = e.clock.Start(e.ctx)
}

func (e *Engine) stopClockLocked() {
	if e.clock == nil {
		return
	}
	e.clock.Stop()
	e.clockEpoch = 0
}

func (e *Engine) snapshotLocked() Snapshot {
	return NewSnapshot(e.sessionID, e.state)
}

func (e *Engine) notifyLocked() {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, fn := range e.listeners {
		fn(snap)
	}
}

func (e *Engine) sessionPayload(rating string) events.SessionPayload {
	return events.SessionPayload{
		Status:          string(e.state.Status),
		Result:          string(e.state.Result),
		TimeElapsed:     e.state.TimeElapsed,
		CycleTime:       e.state.CycleTime,
		ParentSleepTime: e.state.ParentSleepTime,
		TargetSleepTime: e.state.TargetSleepTime,
		Rating:          rating,
	}
}

// emitter appends to the event log on behalf of the current session.
func (e *Engine) emitter(tick int) Emitter {
	return func(eventType events.EventType, actorID, targetID string, payload interface{}) {
		e.eventLog.Append(events.GameEvent{
			SessionID: e.sessionID,
			Type:      eventType,
			ActorID:   actorID,
			TargetID:  targetID,
			Payload:   payload,
			Tick:      tick,
		})

		if eventType == events.EventTypeTimeTick {
			e.logger.Debug("tick", "session", e.sessionID, "t", tick)
			return
		}
		e.logger.Event(string(eventType), actorID, fmt.Sprintf("t=%d target=%s", tick, targetID))
	}
}

func newSessionID() string {
	return "night-" + uuid.NewString()
}
