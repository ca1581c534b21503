package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// FinishReason explains why a request's decode loop stopped emitting
// tokens.
type FinishReason string

const (
	FinishStop            FinishReason = "stop"
	FinishMaxTokens       FinishReason = "max_tokens"
	FinishTimeout         FinishReason = "timeout"
	FinishContentFiltered FinishReason = "content_filtered"
)

// SamplingParams controls generation and is validated on ingress
// (fail-closed, spec §3).
type SamplingParams struct {
	MaxTokens         int32
	Temperature       float64
	TopP              float64
	TopK              int32
	RepetitionPenalty float64
	Stream            bool
	TimeoutMs         int64 // 0 means no per-request timeout
	Deterministic     bool  // caller-asserted: safe to key the dedup cache on this request (open design question)
}

// Validate enforces spec §3's SamplingParams constraints.
func (p *SamplingParams) Validate() error {
	if p.MaxTokens <= 0 {
		return &errs.Validation{Field: "max_tokens", Reason: "must be > 0"}
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return &errs.Validation{Field: "temperature", Reason: "must be in [0, 2]"}
	}
	if p.TopP <= 0 || p.TopP > 1 {
		return &errs.Validation{Field: "top_p", Reason: "must be in (0, 1]"}
	}
	if p.TopK < 0 {
		return &errs.Validation{Field: "top_k", Reason: "must be >= 0"}
	}
	if p.RepetitionPenalty < 1 {
		return &errs.Validation{Field: "repetition_penalty", Reason: "must be >= 1"}
	}
	return nil
}

// ReplySink receives generated tokens for a request, streamed or final.
type ReplySink interface {
	// Emit delivers tokens to the caller. isFinal marks the last call for
	// this request; reason is meaningful only when isFinal is true.
	Emit(tokens []uint32, isFinal bool, reason FinishReason, err error)
}

// QueuedRequest is one admitted inference request as it sits in the
// Request Queue or a batcher slot (spec §3).
type QueuedRequest struct {
	ID           uint64
	ModelID      string
	PromptTokens []uint32
	Params       SamplingParams
	EnqueuedAt   time.Time
	Deadline     time.Time // zero value means no deadline
	CancelFlag   atomic.Bool
	Sink         ReplySink

	priority Priority
	seq      uint64
}

// Priority returns the priority this request was enqueued with.
func (r *QueuedRequest) Priority() Priority { return r.priority }

// HasDeadline reports whether a deadline was set.
func (r *QueuedRequest) HasDeadline() bool { return !r.Deadline.IsZero() }

// Expired reports whether now is past the request's deadline, if any.
func (r *QueuedRequest) Expired(now time.Time) bool {
	return r.HasDeadline() && now.After(r.Deadline)
}

// Cancel sets the request's cancellation flag. Safe for concurrent use.
func (r *QueuedRequest) Cancel() { r.CancelFlag.Store(true) }

// Cancelled reports whether Cancel has been called.
func (r *QueuedRequest) Cancelled() bool { return r.CancelFlag.Load() }
