package dispatch

import (
	"log/slog"
	"sync"
	"time"
)

// coalesceState is the debounce lifecycle of one trigger set.
type coalesceState int

const (
	// stateIdle: no event seen, no timer armed.
	stateIdle coalesceState = iota

	// statePending: an event arrived; the window timer is counting down.
	// Further events reset the timer instead of queueing dispatches.
	statePending

	// stateDispatching: the dispatch function is running. Events arriving
	// now set a re-arm flag: exactly one new window opens once the
	// dispatch returns, so the latest file state is eventually rebuilt
	// without unbounded queueing.
	stateDispatching
)

// Coalescer merges rapid change events into single dispatches. Only the
// last event's path within the window is dispatched.
type Coalescer struct {
	window   time.Duration
	dispatch func(path string)

	mu       sync.Mutex
	state    coalesceState
	timer    *time.Timer
	lastPath string
	rearm    bool
}

// NewCoalescer creates a coalescer that waits for window of quiet before
// running dispatch with the path of the last event seen.
func NewCoalescer(window time.Duration, dispatch func(path string)) *Coalescer {
	return &Coalescer{
		window:   window,
		dispatch: dispatch,
	}
}

// Trigger records an event for path and advances the debounce state
// machine.
func (c *Coalescer) Trigger(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastPath = path

	switch c.state {
	case stateIdle:
		c.state = statePending
		c.timer = time.AfterFunc(c.window, c.fire)

	case statePending:
		// Reset the quiet period; no second dispatch is queued.
		c.timer.Stop()
		c.timer = time.AfterFunc(c.window, c.fire)

	case stateDispatching:
		c.rearm = true
	}
}

// fire runs the dispatch outside the lock, then either re-arms the
// window (an event arrived mid-dispatch) or returns to idle.
func (c *Coalescer) fire() {
	c.mu.Lock()
	c.state = stateDispatching
	path := c.lastPath
	c.mu.Unlock()

	c.safeDispatch(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rearm {
		c.rearm = false
		c.state = statePending
		c.timer = time.AfterFunc(c.window, c.fire)
	} else {
		c.state = stateIdle
	}
}

func (c *Coalescer) safeDispatch(path string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panicked", slog.Any("error", r))
		}
	}()

	c.dispatch(path)
}

// Stop cancels any pending dispatch. A dispatch already running is not
// interrupted, but it will not re-arm.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.rearm = false

	if c.state == statePending {
		c.state = stateIdle
	}
}
