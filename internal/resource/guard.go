// Package resource implements the Resource Guard (spec §4.1): global
// counters for memory bytes and in-flight concurrency, handing out scoped
// reservations that release exactly once.
package resource

import (
	"sync/atomic"

	"github.com/ggcore/gg-core/internal/errs"
)

// Config bounds a Guard's capacity.
type Config struct {
	MaxPerCall    int64 // reject any single try_acquire above this
	MaxTotal      int64 // total outstanding memory across all reservations
	MaxConcurrent int64 // total outstanding reservations
}

// Guard tracks current_memory and current_concurrent atomically and
// enforces Config on every acquisition. The zero value is not usable; use
// New.
type Guard struct {
	cfg Config

	currentMemory     atomic.Int64
	currentConcurrent atomic.Int64
}

// New creates a Guard with the given Config.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// CurrentMemory returns a snapshot of outstanding reserved bytes.
func (g *Guard) CurrentMemory() int64 { return g.currentMemory.Load() }

// CurrentConcurrent returns a snapshot of outstanding reservation count.
func (g *Guard) CurrentConcurrent() int64 { return g.currentConcurrent.Load() }

// TryAcquire reserves bytes and one concurrency slot, per spec §4.1:
//  1. bytes > MaxPerCall fails MemoryExceeded without touching counters.
//  2. adding bytes to current_memory over MaxTotal rolls back and fails
//     MemoryExceeded.
//  3. adding 1 to current_concurrent over MaxConcurrent rolls back both
//     counters and fails QueueFull.
//
// Failures are idempotent: either both counters are incremented (and the
// caller holds a valid Reservation) or neither is.
func (g *Guard) TryAcquire(bytes int64) (*Reservation, error) {
	if bytes > g.cfg.MaxPerCall {
		return nil, &errs.MemoryExceeded{Used: bytes, Limit: g.cfg.MaxPerCall}
	}

	total := g.currentMemory.Add(bytes)
	if total > g.cfg.MaxTotal {
		g.currentMemory.Add(-bytes)
		return nil, &errs.MemoryExceeded{Used: total, Limit: g.cfg.MaxTotal}
	}

	concurrent := g.currentConcurrent.Add(1)
	if concurrent > g.cfg.MaxConcurrent {
		g.currentConcurrent.Add(-1)
		g.currentMemory.Add(-bytes)
		return nil, &errs.QueueFull{Current: concurrent, Max: g.cfg.MaxConcurrent}
	}

	return &Reservation{guard: g, bytes: bytes}, nil
}

// Reservation is a scoped grant from a Guard. Release decrements both
// counters exactly once; subsequent calls are no-ops.
type Reservation struct {
	guard     *Guard
	bytes     int64
	released  atomic.Bool
}

// Release returns the reservation's bytes and concurrency slot to the
// guard. Safe to call more than once or concurrently; only the first call
// has an effect.
func (r *Reservation) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.guard.currentMemory.Add(-r.bytes)
		r.guard.currentConcurrent.Add(-1)
	}
}

// Bytes returns the number of bytes this reservation holds.
func (r *Reservation) Bytes() int64 { return r.bytes }
