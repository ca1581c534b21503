// Package shutdown implements the graceful shutdown coordinator (spec
// §4.10): an atomic in-flight counter and a state machine that blocks new
// work on drain and waits for outstanding work to finish before stopping.
package shutdown

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is a point in the coordinator's one-way lifecycle.
type State int

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// Outcome reports how Initiate's drain wait ended.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeTimeout
)

// Result pairs an Outcome with the in-flight count observed at the end of
// the wait (meaningful only when Outcome is OutcomeTimeout).
type Result struct {
	Outcome   Outcome
	Remaining int32
}

// Coordinator tracks in-flight work and drives the shutdown state machine.
// State only ever advances: Running -> Draining -> Stopped.
type Coordinator struct {
	mu    sync.RWMutex
	state State

	inFlight atomic.Int32

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

// New creates a Coordinator in the Running state.
func New() *Coordinator {
	return &Coordinator{state: StateRunning, notifyCh: make(chan struct{})}
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsAccepting reports whether new work may be tracked (state Running).
func (c *Coordinator) IsAccepting() bool {
	return c.State() == StateRunning
}

// Guard decrements the in-flight counter and wakes any drain waiter,
// exactly once, when Release is called.
type Guard struct {
	c        *Coordinator
	released atomic.Bool
}

// Release must be called when the tracked unit of work finishes.
// Idempotent.
func (g *Guard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.c.inFlight.Add(-1)
		g.c.wake()
	}
}

func (c *Coordinator) wake() {
	c.notifyMu.Lock()
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
	c.notifyMu.Unlock()
}

func (c *Coordinator) notifyChan() chan struct{} {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	return c.notifyCh
}

// Track returns a Guard for one unit of in-flight work, or nil if the
// coordinator is not in the Running state (readiness gating, spec §4.10).
func (c *Coordinator) Track() *Guard {
	if !c.IsAccepting() {
		return nil
	}
	c.inFlight.Add(1)
	return &Guard{c: c}
}

// InFlightCount returns the current number of tracked in-flight units.
func (c *Coordinator) InFlightCount() int32 {
	return c.inFlight.Load()
}

// Initiate transitions Running -> Draining, waits up to timeout for
// in-flight work to reach zero, then transitions Draining -> Stopped
// regardless of outcome.
func (c *Coordinator) Initiate(timeout time.Duration) Result {
	c.mu.Lock()
	c.state = StateDraining
	c.mu.Unlock()

	result := c.waitForDrain(timeout)

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	return result
}

func (c *Coordinator) waitForDrain(timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	for {
		if count := c.inFlight.Load(); count == 0 {
			return Result{Outcome: OutcomeComplete}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Result{Outcome: OutcomeTimeout, Remaining: c.inFlight.Load()}
		}

		select {
		case <-c.notifyChan():
		case <-time.After(remaining):
			if count := c.inFlight.Load(); count == 0 {
				return Result{Outcome: OutcomeComplete}
			}
			return Result{Outcome: OutcomeTimeout, Remaining: c.inFlight.Load()}
		}
	}
}
