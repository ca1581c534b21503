package health

import (
	"testing"

	"github.com/ggcore/gg-core/internal/shutdown"
)

func TestChecker_IsAliveAlwaysTrue(t *testing.T) {
	c := New(DefaultConfig())
	if !c.IsAlive() {
		t.Error("expected IsAlive() true")
	}
}

func TestChecker_IsReadyFalseWhenNotRunning(t *testing.T) {
	c := New(DefaultConfig())
	if c.IsReady(shutdown.StateDraining, 1, 0) {
		t.Error("expected IsReady() false while Draining")
	}
	if c.IsReady(shutdown.StateStopped, 1, 0) {
		t.Error("expected IsReady() false while Stopped")
	}
}

func TestChecker_IsReadyRequiresModelWhenConfigured(t *testing.T) {
	c := New(Config{RequireModelLoaded: true, MaxQueueDepth: 100})
	if c.IsReady(shutdown.StateRunning, 0, 0) {
		t.Error("expected IsReady() false with zero models when required")
	}
	if !c.IsReady(shutdown.StateRunning, 1, 0) {
		t.Error("expected IsReady() true with a model loaded")
	}
}

func TestChecker_IsReadyFalseAtQueueCeiling(t *testing.T) {
	c := New(Config{MaxQueueDepth: 10})
	if !c.IsReady(shutdown.StateRunning, 0, 9) {
		t.Error("expected IsReady() true just below the ceiling")
	}
	if c.IsReady(shutdown.StateRunning, 0, 10) {
		t.Error("expected IsReady() false at the ceiling")
	}
}

func TestChecker_ReportReflectsState(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Report(shutdown.StateRunning, 2, 4096, 3)
	if r.State != StateHealthy {
		t.Errorf("State = %v, want Healthy", r.State)
	}
	if !r.Ready || !r.AcceptingRequests {
		t.Error("expected Ready and AcceptingRequests true while Running")
	}
	if r.ModelsLoaded != 2 || r.MemoryUsedBytes != 4096 || r.QueueDepth != 3 {
		t.Errorf("Report snapshot mismatch: %+v", r)
	}
}

func TestChecker_ReportUnhealthyWhenNotRunning(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Report(shutdown.StateStopped, 0, 0, 0)
	if r.State != StateUnhealthy {
		t.Errorf("State = %v, want Unhealthy", r.State)
	}
	if r.Ready || r.AcceptingRequests {
		t.Error("expected Ready and AcceptingRequests false once Stopped")
	}
}
