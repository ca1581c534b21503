package scheduler

import (
	"testing"
	"time"

	gbackend "github.com/ggcore/gg-core/internal/backend"
	"github.com/ggcore/gg-core/internal/cache"
	"github.com/ggcore/gg-core/internal/kv"
	"github.com/ggcore/gg-core/internal/resource"
)

type recordingSink struct {
	tokens  []uint32
	finals  int
	reason  FinishReason
	lastErr error
}

func (s *recordingSink) Emit(tokens []uint32, isFinal bool, reason FinishReason, err error) {
	s.tokens = append(s.tokens, tokens...)
	if isFinal {
		s.finals++
		s.reason = reason
		s.lastErr = err
	}
}

func newTestBatcher(t *testing.T, maxTokens int) (*Batcher, *RequestQueue, *gbackend.StubBackend) {
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
	b := NewBatcher(2, queue, guard, prefixCache, pool, resolve, 1024, BatcherDeps{})
	return b, queue, stub
}

func TestBatcher_AdmitsAndCompletesARequest(t *testing.T) {
	b, queue, _ := newTestBatcher(t, 3)
	sink := &recordingSink{}
	req := &QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{1, 2, 3},
		Params:       SamplingParams{MaxTokens: 10},
		Sink:         sink,
	}
	if _, _, err := queue.Enqueue(req, PriorityNormal); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	now := time.Now()
	for i := 0; i < 10 && sink.finals == 0; i++ {
		b.Step(now)
	}

	if sink.finals != 1 {
		t.Fatalf("expected exactly one final emission, got %d", sink.finals)
	}
	if len(sink.tokens) == 0 {
		t.Error("expected at least one token emitted")
	}
	if b.ActiveCount() != 0 {
		t.Errorf("expected slot freed after completion, ActiveCount()=%d", b.ActiveCount())
	}
}

func TestBatcher_UnknownModelFailsDuringPrefill(t *testing.T) {
	b, queue, _ := newTestBatcher(t, 3)
	sink := &recordingSink{}
	req := &QueuedRequest{
		ModelID:      "does-not-exist",
		PromptTokens: []uint32{1},
		Params:       SamplingParams{MaxTokens: 10},
		Sink:         sink,
	}
	queue.Enqueue(req, PriorityNormal)

	b.Step(time.Now())

	if sink.finals != 1 {
		t.Fatalf("expected a final emission for unroutable model, got %d", sink.finals)
	}
	if sink.lastErr == nil {
		t.Error("expected an error on the final emission")
	}
	if b.ActiveCount() != 0 {
		t.Error("expected slot released after unroutable model failure")
	}
}

func TestBatcher_CancelledRequestIsRetiredWithoutFinalEmit(t *testing.T) {
	b, queue, _ := newTestBatcher(t, 10)
	sink := &recordingSink{}
	req := &QueuedRequest{
		ModelID:      "m1",
		PromptTokens: []uint32{1, 2},
		Params:       SamplingParams{MaxTokens: 10},
		Sink:         sink,
	}
	queue.Enqueue(req, PriorityNormal)
	b.Step(time.Now()) // admits + prefills

	req.Cancel()
	b.Step(time.Now()) // expire phase should retire it

	if b.ActiveCount() != 0 {
		t.Error("expected cancelled request's slot to be freed")
	}
}

func TestBatcher_RespectsSlotCapacity(t *testing.T) {
	b, queue, _ := newTestBatcher(t, 50)
	for i := 0; i < 5; i++ {
		queue.Enqueue(&QueuedRequest{
			ModelID:      "m1",
			PromptTokens: []uint32{1},
			Params:       SamplingParams{MaxTokens: 50},
			Sink:         &recordingSink{},
		}, PriorityNormal)
	}

	b.Step(time.Now())

	if b.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2 (batcher has only 2 slots)", b.ActiveCount())
	}
	if queue.Len() != 3 {
		t.Errorf("queue.Len() = %d, want 3 remaining", queue.Len())
	}
}
