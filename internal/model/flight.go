package model

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// drainPollInterval is the fixed polling cadence for Drain, per spec §4.5
// ("polls at a fixed short interval ≤ 10ms").
const drainPollInterval = 10 * time.Millisecond

// FlightTracker counts in-flight requests per model Handle, so a swap can
// wait for a model's outstanding work to finish before retiring it.
type FlightTracker struct {
	mu       sync.Mutex
	inFlight map[Handle]*atomic.Int32
}

// NewFlightTracker creates an empty FlightTracker.
func NewFlightTracker() *FlightTracker {
	return &FlightTracker{inFlight: make(map[Handle]*atomic.Int32)}
}

func (t *FlightTracker) counterFor(h Handle) *atomic.Int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.inFlight[h]
	if !ok {
		c = &atomic.Int32{}
		t.inFlight[h] = c
	}
	return c
}

// Guard decrements its handle's in-flight counter exactly once, on Release.
// Safe to call Release more than once; only the first call has effect.
type Guard struct {
	counter  *atomic.Int32
	released atomic.Bool
}

// Release decrements the in-flight counter. Idempotent.
func (g *Guard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.counter.Add(-1)
	}
}

// Track increments h's in-flight counter and returns a Guard the caller
// must Release when the request completes.
func (t *FlightTracker) Track(h Handle) *Guard {
	c := t.counterFor(h)
	c.Add(1)
	return &Guard{counter: c}
}

// InFlightCount returns h's current in-flight count.
func (t *FlightTracker) InFlightCount(h Handle) int32 {
	t.mu.Lock()
	c, ok := t.inFlight[h]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Load()
}

// Drain polls h's in-flight count every drainPollInterval until it reaches
// zero or timeout elapses, in which case it returns a Timeout error.
func (t *FlightTracker) Drain(h Handle, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if t.InFlightCount(h) == 0 {
			return nil
		}
		if time.Now().After(deadline) || time.Now().Equal(deadline) {
			return &errs.Timeout{Kind: "drain", Remaining: int64(t.InFlightCount(h))}
		}
		time.Sleep(drainPollInterval)
	}
}

// Remove tears down h's tracking entry after it has been unloaded.
func (t *FlightTracker) Remove(h Handle) {
	t.mu.Lock()
	delete(t.inFlight, h)
	t.mu.Unlock()
}
