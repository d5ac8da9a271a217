package engine

import (
	"context"
	"sync"
	"time"
)

// TickRate is one simulated second per real second.
const TickRate = 1 * time.Second

// Clock manages the session heartbeat.
// It does NOT know about kids or sleep - only wall time.
//
// Every Start opens a new epoch; the callback receives the epoch it was
// scheduled under so the consumer can discard a tick that raced with Stop.
type Clock struct {
	interval time.Duration
	onTick   func(epoch uint64)

	mu      sync.Mutex
	epoch   uint64
	loopCtx context.Context
	cancel  context.CancelFunc
}

// NewClock creates a stopped clock.
func NewClock(interval time.Duration, onTick func(epoch uint64)) *Clock {
	if interval <= 0 {
		interval = TickRate
	}
	return &Clock{
		interval: interval,
		onTick:   onTick,
	}
}

// Start begins emitting ticks until Stop or ctx cancellation, and returns the
// new epoch. Starting a running clock is a no-op that returns the current epoch.
// The first tick fires one full interval after Start.
func (c *Clock) Start(ctx context.Context) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runningLocked() {
		return c.epoch
	}

	c.epoch++
	c.loopCtx, c.cancel = context.WithCancel(ctx)
	go c.run(c.loopCtx, c.epoch)
	return c.epoch
}

// Stop halts emission immediately: no tick is scheduled after it returns and
// missed ticks are never replayed. A callback that had already begun when
// Stop was called still finishes, under the epoch it started with.
// Safe to call from inside the tick callback.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loopCtx = nil
}

// Running reports whether the clock is currently emitting ticks.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

// Interval returns the wall time between two ticks.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

func (c *Clock) runningLocked() bool {
	return c.loopCtx != nil && c.loopCtx.Err() == nil
}

func (c *Clock) run(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// Delivered inline so ticks never overlap.
			c.onTick(epoch)
		}
	}
}
