package telemetry

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Snapshot reports percentile latency statistics plus simple counters,
// the richer analogue of sim/metrics.go's Metrics struct extended with
// percentiles recovered from telemetry/spans.rs's per-request timing.
type Snapshot struct {
	CompletedRequests int     `json:"completed_requests"`
	FailedRequests    int     `json:"failed_requests"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TTFTP50Ms         float64 `json:"ttft_p50_ms"`
	TTFTP95Ms         float64 `json:"ttft_p95_ms"`
	TTFTP99Ms         float64 `json:"ttft_p99_ms"`
	TPOTP50Ms         float64 `json:"tpot_p50_ms"`
	TPOTP95Ms         float64 `json:"tpot_p95_ms"`
	TPOTP99Ms         float64 `json:"tpot_p99_ms"`
	LatencyP50Ms      float64 `json:"latency_p50_ms"`
	LatencyP95Ms      float64 `json:"latency_p95_ms"`
	LatencyP99Ms      float64 `json:"latency_p99_ms"`
}

// Recorder accumulates per-request timing samples and produces
// percentile snapshots on demand. Safe for concurrent use.
type Recorder struct {
	mu                sync.Mutex
	completed         int
	failed            int
	outputTokens      int64
	ttftSamplesMs     []float64
	tpotSamplesMs     []float64
	latencySamplesMs  []float64
	maxRetainedSample int
}

// NewRecorder creates a Recorder retaining at most maxRetainedSamples
// per metric (oldest dropped first), bounding memory under sustained
// load.
func NewRecorder(maxRetainedSamples int) *Recorder {
	return &Recorder{maxRetainedSample: maxRetainedSamples}
}

// RecordCompletion records one successfully completed request's timing.
func (r *Recorder) RecordCompletion(ttft, tpot, total time.Duration, outputTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.outputTokens += int64(outputTokens)
	r.ttftSamplesMs = appendBounded(r.ttftSamplesMs, msOf(ttft), r.maxRetainedSample)
	r.tpotSamplesMs = appendBounded(r.tpotSamplesMs, msOf(tpot), r.maxRetainedSample)
	r.latencySamplesMs = appendBounded(r.latencySamplesMs, msOf(total), r.maxRetainedSample)
}

// RecordFailure records one request that ended in an error.
func (r *Recorder) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func msOf(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

func appendBounded(samples []float64, v float64, max int) []float64 {
	samples = append(samples, v)
	if max > 0 && len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// Snapshot computes the current percentile statistics. Percentiles with
// no samples are reported as 0; a single sample is every percentile.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ttftP50, ttftP95, ttftP99 := percentiles(r.ttftSamplesMs)
	tpotP50, tpotP95, tpotP99 := percentiles(r.tpotSamplesMs)
	latP50, latP95, latP99 := percentiles(r.latencySamplesMs)

	return Snapshot{
		CompletedRequests: r.completed,
		FailedRequests:    r.failed,
		TotalOutputTokens: r.outputTokens,
		TTFTP50Ms:         ttftP50,
		TTFTP95Ms:         ttftP95,
		TTFTP99Ms:         ttftP99,
		TPOTP50Ms:         tpotP50,
		TPOTP95Ms:         tpotP95,
		TPOTP99Ms:         tpotP99,
		LatencyP50Ms:      latP50,
		LatencyP95Ms:      latP95,
		LatencyP99Ms:      latP99,
	}
}

func percentiles(samples []float64) (p50, p95, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.95, stat.Empirical, sorted, nil),
		stat.Quantile(0.99, stat.Empirical, sorted, nil)
}
