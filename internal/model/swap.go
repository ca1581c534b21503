package model

import (
	"sync"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// Preloader loads a model described by manifest and returns its memory
// footprint in bytes. The runtime's implementation is cmd's backendSet;
// model only depends on this narrow capability to avoid a cyclic import.
type Preloader interface {
	Preload(m *Manifest) (memoryBytes int64, err error)
	Abort(h Handle)
}

type swapState int

const (
	stateIdle swapState = iota
	statePreparing
	stateDraining
	stateSwapping
)

// Result reports the outcome of a successful hot-swap.
type Result struct {
	OldHandle     Handle
	NewHandle     Handle
	DrainDuration time.Duration
}

// SwapManager orchestrates zero-downtime model replacement: preload the
// new model, drain in-flight requests against the old one, then swap the
// route atomically (spec §4.6).
type SwapManager struct {
	mu    sync.Mutex
	state swapState

	registry  *Registry
	router    *Router
	flight    *FlightTracker
	preloader Preloader
}

// NewSwapManager wires a SwapManager to its collaborators.
func NewSwapManager(registry *Registry, router *Router, flight *FlightTracker, preloader Preloader) *SwapManager {
	return &SwapManager{registry: registry, router: router, flight: flight, preloader: preloader}
}

// IsIdle reports whether no swap is currently in progress.
func (s *SwapManager) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateIdle
}

func (s *SwapManager) setState(st swapState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ExecuteSwap runs the full swap sequence for modelID against newManifest,
// aborting cleanly (no dangling handle, old route preserved) on any
// failure.
func (s *SwapManager) ExecuteSwap(modelID string, newManifest *Manifest, drainTimeout time.Duration) (*Result, error) {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return nil, &errs.Internal{Reason: "swap already in progress"}
	}
	s.state = statePreparing
	s.mu.Unlock()

	oldHandle, ok := s.router.Resolve(modelID)
	if !ok {
		s.setState(stateIdle)
		return nil, &errs.NotFound{Kind: "model", ID: modelID}
	}

	if err := newManifest.Validate(); err != nil {
		s.setState(stateIdle)
		return nil, err
	}
	memoryBytes, err := s.preloader.Preload(newManifest)
	if err != nil {
		s.setState(stateIdle)
		return nil, &errs.BackendFailure{Err: err}
	}
	newHandle := s.registry.Register(Metadata{
		ModelID: newManifest.ModelID,
		Name:    newManifest.Name,
		Version: newManifest.Version,
	}, memoryBytes)

	s.setState(stateDraining)
	drainStart := time.Now()
	if drainErr := s.flight.Drain(oldHandle, drainTimeout); drainErr != nil {
		s.preloader.Abort(newHandle)
		s.registry.Unregister(newHandle)
		s.setState(stateIdle)
		return nil, drainErr
	}
	drainDuration := time.Since(drainStart)

	s.setState(stateSwapping)
	s.router.SwapRoute(modelID, newHandle)
	s.registry.Unregister(oldHandle)
	s.flight.Remove(oldHandle)
	s.setState(stateIdle)

	return &Result{OldHandle: oldHandle, NewHandle: newHandle, DrainDuration: drainDuration}, nil
}
