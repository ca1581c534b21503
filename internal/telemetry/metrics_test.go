package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_SnapshotWithNoSamples(t *testing.T) {
	r := NewRecorder(0)
	snap := r.Snapshot()
	assert.Equal(t, 0, snap.CompletedRequests)
	assert.Equal(t, float64(0), snap.TTFTP50Ms)
}

func TestRecorder_RecordCompletionAccumulates(t *testing.T) {
	r := NewRecorder(0)
	r.RecordCompletion(10*time.Millisecond, 5*time.Millisecond, 100*time.Millisecond, 20)
	r.RecordCompletion(20*time.Millisecond, 8*time.Millisecond, 150*time.Millisecond, 30)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.CompletedRequests)
	assert.Equal(t, int64(50), snap.TotalOutputTokens)
	assert.Greater(t, snap.TTFTP50Ms, float64(0))
	assert.Greater(t, snap.LatencyP99Ms, float64(0))
}

func TestRecorder_RecordFailureIncrementsFailedCount(t *testing.T) {
	r := NewRecorder(0)
	r.RecordFailure()
	r.RecordFailure()
	snap := r.Snapshot()
	assert.Equal(t, 2, snap.FailedRequests)
}

func TestRecorder_BoundsRetainedSamples(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 10; i++ {
		r.RecordCompletion(time.Millisecond, time.Millisecond, time.Millisecond, 1)
	}
	r.mu.Lock()
	n := len(r.latencySamplesMs)
	r.mu.Unlock()
	assert.Equal(t, 3, n)
}

func TestRecorder_PercentilesAreMonotonic(t *testing.T) {
	r := NewRecorder(0)
	for i := 1; i <= 100; i++ {
		d := time.Duration(i) * time.Millisecond
		r.RecordCompletion(d, d, d, 1)
	}
	snap := r.Snapshot()
	assert.LessOrEqual(t, snap.LatencyP50Ms, snap.LatencyP95Ms)
	assert.LessOrEqual(t, snap.LatencyP95Ms, snap.LatencyP99Ms)
}
