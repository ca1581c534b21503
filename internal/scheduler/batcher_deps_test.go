package scheduler

import (
	"testing"
	"time"

	gbackend "github.com/ggcore/gg-core/internal/backend"
	"github.com/ggcore/gg-core/internal/cache"
	"github.com/ggcore/gg-core/internal/kv"
	"github.com/ggcore/gg-core/internal/model"
	"github.com/ggcore/gg-core/internal/resource"
	"github.com/ggcore/gg-core/internal/shutdown"
	"github.com/ggcore/gg-core/internal/telemetry"
)

func newWiredTestBatcher(t *testing.T, maxTokens int) (*Batcher, *RequestQueue, model.Handle, *shutdown.Coordinator, *model.FlightTracker, *telemetry.Recorder, *cache.DedupCache) {
	t.Helper()
	queue := NewRequestQueue(8)
	guard := resource.New(resource.Config{MaxPerCall: 1 << 20, MaxTotal: 1 << 30, MaxConcurrent: 4})
	prefixCache := cache.NewPrefixCache(8)
	pool := kv.NewPool(64, 8, kv.Q8)
	stub := gbackend.NewStubBackend("m1", []string{"text_generation"}, 1024, 7, maxTokens, 8)
	resolve := func(modelID string) (gbackend.Backend, bool) {
		if modelID == "m1" {
			return stub, true
		}
		return nil, false
	}

	registry := model.NewRegistry()
	router := model.NewRouter()
	handle := registry.Register(model.Metadata{ModelID: "m1", Name: "m1", Version: "1"}, 1024)
	if err := router.AddRoute("m1", handle); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}

	coordinator := shutdown.New()
	flight := model.NewFlightTracker()
	recorder := telemetry.NewRecorder(64)
	dedup := cache.NewDedupCache(16, time.Minute)

	b := NewBatcher(2, queue, guard, prefixCache, pool, resolve, 1024, BatcherDeps{
		Shutdown:      coordinator,
		Flight:        flight,
		ResolveHandle: router.Resolve,
		Recorder:      recorder,
		Dedup:         dedup,
	})
	return b, queue, handle, coordinator, flight, recorder, dedup
}

func TestBatcher_TracksShutdownAndFlightDuringRequest(t *testing.T) {
	b, queue, handle, coordinator, flight, _, _ := newWiredTestBatcher(t, 5)
	sink := &recordingSink{}
	req := &QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{1, 2, 3},
		Params:       SamplingParams{MaxTokens: 5},
		Sink:         sink,
	}
	queue.Enqueue(req, PriorityNormal)

	now := time.Now()
	b.Step(now) // admits, tracks both guards

	if coordinator.InFlightCount() != 1 {
		t.Errorf("InFlightCount() = %d, want 1 while request is in flight", coordinator.InFlightCount())
	}
	if flight.InFlightCount(handle) != 1 {
		t.Errorf("flight.InFlightCount() = %d, want 1 while request is in flight", flight.InFlightCount(handle))
	}

	for i := 0; i < 10 && sink.finals == 0; i++ {
		b.Step(now)
	}
	if sink.finals != 1 {
		t.Fatalf("expected request to complete, got %d finals", sink.finals)
	}
	if coordinator.InFlightCount() != 0 {
		t.Errorf("InFlightCount() = %d, want 0 after completion", coordinator.InFlightCount())
	}
	if flight.InFlightCount(handle) != 0 {
		t.Errorf("flight.InFlightCount() = %d, want 0 after completion", flight.InFlightCount(handle))
	}
}

func TestBatcher_RecordsCompletionAndFailureTelemetry(t *testing.T) {
	b, queue, _, _, _, recorder, _ := newWiredTestBatcher(t, 2)
	okSink := &recordingSink{}
	queue.Enqueue(&QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{1},
		Params:       SamplingParams{MaxTokens: 2},
		Sink:         okSink,
	}, PriorityNormal)

	failSink := &recordingSink{}
	queue.Enqueue(&QueuedRequest{
		ModelID:      "does-not-exist",
		PromptTokens: []uint32{1},
		Params:       SamplingParams{MaxTokens: 2},
		Sink:         failSink,
	}, PriorityNormal)

	now := time.Now()
	for i := 0; i < 10 && (okSink.finals == 0 || failSink.finals == 0); i++ {
		b.Step(now)
	}

	snap := recorder.Snapshot()
	if snap.CompletedRequests != 1 {
		t.Errorf("CompletedRequests = %d, want 1", snap.CompletedRequests)
	}
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
}

func TestBatcher_DedupCacheShortCircuitsRepeatDeterministicRequest(t *testing.T) {
	b, queue, _, _, _, recorder, dedup := newWiredTestBatcher(t, 3)

	first := &recordingSink{}
	queue.Enqueue(&QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{9, 9, 9},
		Params:       SamplingParams{MaxTokens: 3, Deterministic: true},
		Sink:         first,
	}, PriorityNormal)

	now := time.Now()
	for i := 0; i < 10 && first.finals == 0; i++ {
		b.Step(now)
	}
	if first.finals != 1 {
		t.Fatalf("expected first request to complete, got %d finals", first.finals)
	}
	if dedup.Len() != 1 {
		t.Fatalf("dedup.Len() = %d, want 1 after a deterministic completion", dedup.Len())
	}

	before := recorder.Snapshot().CompletedRequests
	second := &recordingSink{}
	queue.Enqueue(&QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{9, 9, 9},
		Params:       SamplingParams{MaxTokens: 3, Deterministic: true},
		Sink:         second,
	}, PriorityNormal)

	b.Step(now) // dedup hit is resolved entirely within admit, no slot needed

	if second.finals != 1 {
		t.Fatalf("expected dedup hit to emit a final immediately, got %d finals", second.finals)
	}
	if len(second.tokens) != len(first.tokens) {
		t.Errorf("dedup hit returned %d tokens, want %d matching the first completion", len(second.tokens), len(first.tokens))
	}
	if b.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0: a dedup hit should never occupy a batch slot", b.ActiveCount())
	}
	if got := recorder.Snapshot().CompletedRequests; got != before+1 {
		t.Errorf("CompletedRequests = %d, want %d after the dedup-hit completion", got, before+1)
	}
}
