package ipc

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConnectionPool admits up to maxConnections concurrent connections;
// acquisition beyond the limit fails immediately rather than queuing
// (spec §4.9: "excess connections are closed immediately").
type ConnectionPool struct {
	sem    *semaphore.Weighted
	max    int64
	active atomic.Int64
}

// NewConnectionPool creates a ConnectionPool bounded at maxConnections.
func NewConnectionPool(maxConnections int64) *ConnectionPool {
	return &ConnectionPool{sem: semaphore.NewWeighted(maxConnections), max: maxConnections}
}

// ConnectionGuard releases its connection slot exactly once, on Release.
type ConnectionGuard struct {
	pool     *ConnectionPool
	released atomic.Bool
}

// Release returns the slot to the pool. Idempotent.
func (g *ConnectionGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.pool.active.Add(-1)
		g.pool.sem.Release(1)
	}
}

// TryAcquire attempts to claim a connection slot, returning nil if the
// pool is already at capacity.
func (p *ConnectionPool) TryAcquire() *ConnectionGuard {
	if !p.sem.TryAcquire(1) {
		return nil
	}
	p.active.Add(1)
	return &ConnectionGuard{pool: p}
}

// ActiveCount returns the number of connections currently held.
func (p *ConnectionPool) ActiveCount() int64 { return p.active.Load() }

// MaxConnections returns the pool's capacity.
func (p *ConnectionPool) MaxConnections() int64 { return p.max }
