package scheduler

import (
	"time"

	"github.com/ggcore/gg-core/internal/backend"
	"github.com/ggcore/gg-core/internal/cache"
	"github.com/ggcore/gg-core/internal/errs"
	"github.com/ggcore/gg-core/internal/kv"
	"github.com/ggcore/gg-core/internal/model"
	"github.com/ggcore/gg-core/internal/resource"
	"github.com/ggcore/gg-core/internal/shutdown"
	"github.com/ggcore/gg-core/internal/telemetry"
)

// Phase is which half of one generation cycle a batch slot is in.
type Phase int

const (
	PhasePrefill Phase = iota
	PhaseDecode
)

// BackendResolver looks up the Backend currently routed for modelID.
type BackendResolver func(modelID string) (backend.Backend, bool)

// HandleResolver looks up the model Handle currently routed for
// modelID, for flight-tracking purposes. Kept separate from
// BackendResolver so a bare Batcher (tests, or a runtime with no
// registry wired up) can omit it.
type HandleResolver func(modelID string) (model.Handle, bool)

// slot is one of the batcher's fixed number of concurrent generation
// contexts (spec §4.8).
type slot struct {
	req         *QueuedRequest
	phase       Phase
	progress    int // tokens generated so far in Decode; tokens prefilled so far in Prefill
	pageTable   *kv.Table
	reservation *resource.Reservation

	admittedAt   time.Time
	firstTokenAt time.Time
	outputTokens []uint32

	shutdownGuard *shutdown.Guard
	flightGuard   *model.Guard

	dedupKey    [32]byte
	hasDedupKey bool
}

// BatcherDeps bundles the batcher's optional cross-cutting
// collaborators. Every field is optional (nil/zero disables that
// integration), so a test can stand up a bare Batcher without the rest
// of the runtime.
type BatcherDeps struct {
	// Shutdown tracks each admitted request as in-flight work so a
	// graceful drain (spec §4.10) waits for it to finish.
	Shutdown *shutdown.Coordinator
	// Flight increments a per-model in-flight counter so a hot-swap's
	// drain (spec §4.6) can observe real load against a handle.
	Flight *model.FlightTracker
	// ResolveHandle maps a request's model_id to the Handle Flight
	// should track. Required for Flight tracking to take effect.
	ResolveHandle HandleResolver
	// Recorder feeds request-timing samples to the telemetry snapshot
	// (spec §4.9's metrics surface).
	Recorder *telemetry.Recorder
	// Dedup is consulted on admission for requests whose sampling
	// params are marked Deterministic, and populated on their
	// successful completion (spec §4.4).
	Dedup *cache.DedupCache
}

// Batcher runs continuous batching: every Step, it admits new requests
// into free slots, expires stale ones, advances prefill, then advances
// decode (spec §4.8). Prefill always completes before decode within a
// step.
type Batcher struct {
	slots       []*slot
	queue       *RequestQueue
	guard       *resource.Guard
	prefixCache *cache.PrefixCache
	pagePool    *kv.Pool
	resolve     BackendResolver

	shutdown      *shutdown.Coordinator
	flight        *model.FlightTracker
	resolveHandle HandleResolver
	recorder      *telemetry.Recorder
	dedup         *cache.DedupCache

	memPerRequest int64 // flat per-request reservation; real sizing depends on prompt length and model, left to the resource guard's max_per_call ceiling
}

// NewBatcher creates a Batcher with n fan-out slots.
func NewBatcher(n int, queue *RequestQueue, guard *resource.Guard, prefixCache *cache.PrefixCache, pagePool *kv.Pool, resolve BackendResolver, memPerRequest int64, deps BatcherDeps) *Batcher {
	return &Batcher{
		slots:         make([]*slot, n),
		queue:         queue,
		guard:         guard,
		prefixCache:   prefixCache,
		pagePool:      pagePool,
		resolve:       resolve,
		shutdown:      deps.Shutdown,
		flight:        deps.Flight,
		resolveHandle: deps.ResolveHandle,
		recorder:      deps.Recorder,
		dedup:         deps.Dedup,
		memPerRequest: memPerRequest,
	}
}

func (b *Batcher) freeSlotIndex() int {
	for i, s := range b.slots {
		if s == nil {
			return i
		}
	}
	return -1
}

// Step runs one scheduling cycle: admit, expire, prefill, decode.
func (b *Batcher) Step(now time.Time) {
	b.admit(now)
	b.expire(now)
	b.prefill()
	b.decode(now)
}

// dedupKeyFor returns the dedup cache key for req and whether the dedup
// cache should be consulted/populated for it at all (spec §4.4: only
// requests the caller has marked Deterministic are safe to key on).
func (b *Batcher) dedupKeyFor(req *QueuedRequest) ([32]byte, bool) {
	if b.dedup == nil || !req.Params.Deterministic {
		return [32]byte{}, false
	}
	return cache.HashDedupKey(req.PromptTokens, cache.DedupKeyParams{
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		TopK:        req.Params.TopK,
	}), true
}

func (b *Batcher) admit(now time.Time) {
	for {
		i := b.freeSlotIndex()
		if i < 0 || b.queue.IsEmpty() {
			return
		}
		reservation, err := b.guard.TryAcquire(b.memPerRequest)
		if err != nil {
			return
		}
		req, ok := b.queue.Dequeue()
		if !ok {
			reservation.Release()
			return
		}

		key, hasKey := b.dedupKeyFor(req)
		if hasKey {
			if tokens, hit := b.dedup.Get(key); hit {
				reservation.Release()
				req.Sink.Emit(tokens, true, FinishStop, nil)
				if b.recorder != nil {
					total := now.Sub(req.EnqueuedAt)
					b.recorder.RecordCompletion(total, 0, total, len(tokens))
				}
				continue // slot i is still free; loop picks up the next request
			}
		}

		s := &slot{
			req:         req,
			phase:       PhasePrefill,
			pageTable:   kv.NewTable(b.pagePool),
			reservation: reservation,
			admittedAt:  now,
			dedupKey:    key,
			hasDedupKey: hasKey,
		}
		if b.shutdown != nil {
			s.shutdownGuard = b.shutdown.Track()
		}
		if b.flight != nil && b.resolveHandle != nil {
			if h, ok := b.resolveHandle(req.ModelID); ok {
				s.flightGuard = b.flight.Track(h)
			}
		}
		b.slots[i] = s
	}
}

func (b *Batcher) expire(now time.Time) {
	for i, s := range b.slots {
		if s == nil {
			continue
		}
		cancelled := s.req.Cancelled()
		expired := s.req.Expired(now)
		if !cancelled && !expired {
			continue
		}
		if expired {
			s.req.Sink.Emit(nil, true, FinishTimeout, &errs.Timeout{Kind: "request", Remaining: 0})
			if b.recorder != nil {
				b.recorder.RecordFailure()
			}
		}
		b.retire(i)
	}
}

func (b *Batcher) retire(i int) {
	s := b.slots[i]
	if s == nil {
		return
	}
	s.pageTable.Release()
	s.reservation.Release()
	if s.shutdownGuard != nil {
		s.shutdownGuard.Release()
	}
	if s.flightGuard != nil {
		s.flightGuard.Release()
	}
	b.slots[i] = nil
}

func (b *Batcher) fail(i int, reason FinishReason, err error) {
	s := b.slots[i]
	s.req.Sink.Emit(nil, true, reason, err)
	if b.recorder != nil {
		b.recorder.RecordFailure()
	}
	b.retire(i)
}

func (b *Batcher) prefill() {
	for i, s := range b.slots {
		if s == nil || s.phase != PhasePrefill {
			continue
		}
		be, ok := b.resolve(s.req.ModelID)
		if !ok {
			b.fail(i, FinishStop, &errs.NotFound{Kind: "model", ID: s.req.ModelID})
			continue
		}

		cachedLen := 0
		if n, _, found := b.prefixCache.FindPrefix(s.req.PromptTokens); found {
			cachedLen = n
		}

		retired := false
		for pos := int64(cachedLen); pos < int64(len(s.req.PromptTokens)); pos++ {
			if s.pageTable.Allocate(pos) == nil {
				b.fail(i, FinishStop, &errs.MemoryExceeded{Used: pos, Limit: int64(b.pagePool.Capacity() * kv.PageTokens)})
				retired = true
				break
			}
		}
		if retired {
			continue
		}

		result, err := be.Prefill(s.req.PromptTokens, cachedLen)
		if err != nil {
			b.fail(i, FinishStop, &errs.BackendFailure{Err: err})
			continue
		}
		b.writePrefillKV(s, cachedLen, result)
		if len(result.KVBytes) > 0 {
			b.prefixCache.Insert(s.req.PromptTokens, result.KVBytes, len(s.req.PromptTokens))
		}
		s.phase = PhaseDecode
		s.progress = 0
	}
}

// writePrefillKV stores the backend's raw key/value rows into the
// page(s) allocated for positions [cachedLen, cachedLen+len(result.Keys))
// (spec §4.8 step 4: "write KV"). A short Keys/Values slice (a stub or
// backend that declines to populate them) simply writes fewer slots;
// WriteSlot is only ever called for a position the pool already
// allocated a page for.
func (b *Batcher) writePrefillKV(s *slot, cachedLen int, result backend.PrefillResult) {
	n := len(result.Keys)
	if len(result.Values) < n {
		n = len(result.Values)
	}
	for j := 0; j < n; j++ {
		pos := int64(cachedLen + j)
		page := s.pageTable.PageFor(pos)
		if page == nil {
			break
		}
		page.WriteSlot(kv.SlotInPage(pos), result.Keys[j], result.Values[j], b.pagePool.Format())
	}
}

func (b *Batcher) decode(now time.Time) {
	for i, s := range b.slots {
		if s == nil || s.phase != PhaseDecode {
			continue
		}
		be, ok := b.resolve(s.req.ModelID)
		if !ok {
			b.fail(i, FinishStop, &errs.NotFound{Kind: "model", ID: s.req.ModelID})
			continue
		}

		pos := int64(len(s.req.PromptTokens)) + int64(s.progress)

		result, err := be.Decode(s.req.ID, s.progress)
		if err != nil {
			b.fail(i, FinishStop, &errs.BackendFailure{Err: err})
			continue
		}

		if len(result.Query) > 0 {
			// Exercise the attention kernels over every position written
			// so far before this one joins the table (spec §4.2).
			_ = s.pageTable.Attend(result.Query, pos)
		}

		if s.pageTable.Allocate(pos) == nil {
			b.fail(i, FinishStop, &errs.MemoryExceeded{Used: pos, Limit: int64(b.pagePool.Capacity() * kv.PageTokens)})
			continue
		}
		if len(result.Key) > 0 && len(result.Value) > 0 {
			if page := s.pageTable.PageFor(pos); page != nil {
				page.WriteSlot(kv.SlotInPage(pos), result.Key, result.Value, b.pagePool.Format())
			}
		}

		s.progress++
		if s.firstTokenAt.IsZero() {
			s.firstTokenAt = now
		}
		s.outputTokens = append(s.outputTokens, result.Token)

		finished := result.Finished || s.progress >= int(s.req.Params.MaxTokens)
		reason := FinishStop
		if !result.Finished && s.progress >= int(s.req.Params.MaxTokens) {
			reason = FinishMaxTokens
		}
		if finished {
			s.req.Sink.Emit([]uint32{result.Token}, true, reason, nil)
			b.recordCompletion(s, now)
			if s.hasDedupKey {
				b.dedup.Insert(s.dedupKey, s.outputTokens)
			}
			b.retire(i)
		} else {
			s.req.Sink.Emit([]uint32{result.Token}, false, "", nil)
		}
	}
}

// recordCompletion feeds the recorder with this slot's timing: time to
// first token, average time per subsequent output token, and total
// latency, all measured from the request's enqueue time (spec §4.9).
func (b *Batcher) recordCompletion(s *slot, now time.Time) {
	if b.recorder == nil {
		return
	}
	total := now.Sub(s.req.EnqueuedAt)
	ttft := s.firstTokenAt.Sub(s.req.EnqueuedAt)
	var tpot time.Duration
	if s.progress > 1 {
		tpot = now.Sub(s.firstTokenAt) / time.Duration(s.progress-1)
	}
	b.recorder.RecordCompletion(ttft, tpot, total, s.progress)
}

// ActiveCount reports how many slots currently hold a request.
func (b *Batcher) ActiveCount() int {
	n := 0
	for _, s := range b.slots {
		if s != nil {
			n++
		}
	}
	return n
}
