// Package clock implements the simulated clock that drives clearing hours and
// every simulated timestamp.
package clock

import (
	"math"
	"sync"
	"time"

	"corrsim/internal/models"
)

// MaxTick bounds the rate Faster and SetTick can reach: about twelve
// simulated days per real second.
const MaxTick int64 = 1 << 20

// maxAdvance is the largest step, in seconds, a time.Duration can carry.
const maxAdvance = math.MaxInt64 / int64(time.Second)

// Config holds clock tunables.
type Config struct {
	// Epoch is the simulated instant a reset returns to.
	Epoch time.Time
	// BaseTick is the 1x rate: the tick restored on reset and the floor for Slower.
	BaseTick int64
}

// Clock advances simulated time at Tick simulated seconds per real second.
// Any rate change first folds the elapsed simulated time into the base, so
// the timeline never jumps.
type Clock struct {
	mu    sync.Mutex
	cfg   Config
	now   func() time.Time
	state models.ClockState
}

// New creates a clock. A nil state starts at the epoch; a nil now uses time.Now.
func New(cfg Config, state *models.ClockState, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	if cfg.BaseTick <= 0 {
		cfg.BaseTick = 1
	}
	if cfg.BaseTick > MaxTick {
		cfg.BaseTick = MaxTick
	}
	c := &Clock{cfg: cfg, now: now}
	if state != nil {
		c.state = *state
		c.state.Tick = clampTick(c.state.Tick)
		c.state.PausedTick = clampTick(c.state.PausedTick)
	} else {
		c.state = c.epochState()
	}
	return c
}

func (c *Clock) epochState() models.ClockState {
	return models.ClockState{
		SimTime:    c.cfg.Epoch.UTC(),
		LastUpdate: c.now(),
		Tick:       c.cfg.BaseTick,
		PausedTick: c.cfg.BaseTick,
	}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

func (c *Clock) current() time.Time {
	if c.state.Tick == 0 {
		return c.state.SimTime
	}
	elapsed := int64(c.now().Sub(c.state.LastUpdate) / time.Second)
	if elapsed <= 0 {
		return c.state.SimTime
	}
	// Saturate rather than wrap when a long unflushed run overflows.
	advance := maxAdvance
	if elapsed <= maxAdvance/c.state.Tick {
		advance = elapsed * c.state.Tick
	}
	return c.state.SimTime.Add(time.Duration(advance) * time.Second)
}

func clampTick(tick int64) int64 {
	return min(max(tick, 0), MaxTick)
}

func (c *Clock) flush() {
	c.state.SimTime = c.current()
	c.state.LastUpdate = c.now()
}

// Status reports the simulated time, tick and paused flag.
func (c *Clock) Status() models.ClockStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current()
	return models.ClockStatus{
		SimTime:   now,
		SimTimeMs: now.UnixMilli(),
		Tick:      c.state.Tick,
		IsPaused:  c.state.Tick == 0,
	}
}

// State returns the record to persist.
func (c *Clock) State() models.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetTick changes the rate after flushing elapsed time.
func (c *Clock) SetTick(tick int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTick(tick)
}

func (c *Clock) setTick(tick int64) {
	c.flush()
	c.state.Tick = clampTick(tick)
}

// Pause freezes the clock and remembers the running tick for Play.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Tick > 0 {
		c.state.PausedTick = c.state.Tick
	}
	c.setTick(0)
}

// Play resumes at the remembered tick, or the base tick if none was recorded.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Tick > 0 {
		return
	}
	tick := c.state.PausedTick
	if tick <= 0 {
		tick = c.cfg.BaseTick
	}
	c.setTick(tick)
}

// Faster doubles the tick, up to MaxTick. No-op while paused.
func (c *Clock) Faster() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Tick == 0 {
		return
	}
	c.setTick(min(c.state.Tick, MaxTick/2) * 2)
}

// Slower halves the tick, never below the base tick. No-op while paused.
func (c *Clock) Slower() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Tick == 0 {
		return
	}
	tick := c.state.Tick / 2
	if tick < c.cfg.BaseTick {
		tick = c.cfg.BaseTick
	}
	c.setTick(tick)
}

// Reset returns to the epoch at the base tick, running.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.epochState()
}
