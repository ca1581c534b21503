package scheduler

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// RequestQueue wraps the priority heap with a mutex and an atomic
// next-id counter (spec §4.7).
type RequestQueue struct {
	mu         sync.Mutex
	heap       priorityHeap
	maxPending int
	nextID     atomic.Uint64
}

// NewRequestQueue creates an empty RequestQueue admitting at most
// maxPending requests at a time.
func NewRequestQueue(maxPending int) *RequestQueue {
	h := make(priorityHeap, 0)
	heap.Init(&h)
	return &RequestQueue{heap: h, maxPending: maxPending}
}

// Enqueue admits req at the given priority, assigning it a fresh id and
// arrival sequence. Returns QueueFull if the queue is already at
// maxPending. Streaming and non-streaming requests share the same
// capacity budget (spec §4.7).
func (q *RequestQueue) Enqueue(req *QueuedRequest, priority Priority) (id uint64, position int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) >= q.maxPending {
		return 0, 0, &errs.QueueFull{Current: int64(len(q.heap)), Max: int64(q.maxPending)}
	}

	seq := q.nextID.Add(1)
	req.ID = seq
	req.priority = priority
	req.seq = seq
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	it := &item{priority: priority, seq: seq, value: req}
	heap.Push(&q.heap, it)
	return seq, it.index, nil
}

// Dequeue pops the highest-priority, earliest-arrived request, or returns
// false if the queue is empty.
func (q *RequestQueue) Dequeue() (*QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(*item)
	return it.value, true
}

// Len returns the current number of queued requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether the queue currently holds no requests.
func (q *RequestQueue) IsEmpty() bool {
	return q.Len() == 0
}
