// Package health aggregates liveness, readiness, and full health reports
// for orchestrator integration (Kubernetes, systemd), per spec §4.9's
// HealthCheckRequest surface and supplemented from the original health
// report detail dropped by the distillation.
package health

import (
	"time"

	"github.com/ggcore/gg-core/internal/shutdown"
)

// State is an overall health classification.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Report is the detailed payload behind a Full health check.
type Report struct {
	State             State
	Ready             bool
	AcceptingRequests bool
	ModelsLoaded      int
	MemoryUsedBytes   int64
	QueueDepth        int
	UptimeSeconds     int64
}

// Config tunes readiness thresholds.
type Config struct {
	RequireModelLoaded bool
	MaxQueueDepth      int
}

// DefaultConfig matches the conservative defaults of an orchestrator-
// driven deployment: no model required at boot, a generous queue depth
// ceiling.
func DefaultConfig() Config {
	return Config{RequireModelLoaded: false, MaxQueueDepth: 1000}
}

// Checker aggregates health information from runtime components.
type Checker struct {
	config    Config
	startTime time.Time
}

// New creates a Checker whose uptime clock starts now.
func New(config Config) *Checker {
	return &Checker{config: config, startTime: time.Now()}
}

// IsAlive reports liveness: unconditionally true while the process runs.
func (c *Checker) IsAlive() bool { return true }

// IsReady reports readiness: true only while Running, with a loaded
// model if required, and below the queue depth ceiling.
func (c *Checker) IsReady(state shutdown.State, models, queueLen int) bool {
	if state != shutdown.StateRunning {
		return false
	}
	if c.config.RequireModelLoaded && models == 0 {
		return false
	}
	if queueLen >= c.config.MaxQueueDepth {
		return false
	}
	return true
}

// Report produces a full health report.
func (c *Checker) Report(state shutdown.State, models int, memoryBytes int64, queueLen int) Report {
	return Report{
		State:             c.computeState(state, models, queueLen),
		Ready:             c.IsReady(state, models, queueLen),
		AcceptingRequests: state == shutdown.StateRunning,
		ModelsLoaded:      models,
		MemoryUsedBytes:   memoryBytes,
		QueueDepth:        queueLen,
		UptimeSeconds:     int64(time.Since(c.startTime).Seconds()),
	}
}

func (c *Checker) computeState(state shutdown.State, models, queueLen int) State {
	if state != shutdown.StateRunning {
		return StateUnhealthy
	}
	if c.config.RequireModelLoaded && models == 0 {
		return StateDegraded
	}
	if queueLen >= c.config.MaxQueueDepth {
		return StateDegraded
	}
	return StateHealthy
}
