package cache

import (
	"testing"
	"time"
)

func TestDedupCache_ScenarioFromSpec(t *testing.T) {
	// GIVEN a cache with TTL=1ms and a fake clock
	now := time.Unix(0, 0)
	c := NewDedupCache(8, time.Millisecond)
	c.now = func() time.Time { return now }

	key := HashDedupKey([]uint32{1, 2, 3}, DedupKeyParams{MaxTokens: 100, Temperature: 0.7, TopP: 0.9, TopK: 40})
	c.Insert(key, []uint32{10, 11, 12})

	// WHEN got immediately
	out, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit immediately after insert")
	}
	if len(out) != 3 || out[0] != 10 {
		t.Errorf("got %v, want [10 11 12]", out)
	}

	// WHEN the clock advances past the TTL
	now = now.Add(2 * time.Millisecond)

	// THEN get returns false and cleanup shrinks the map to zero
	if _, ok := c.Get(key); ok {
		t.Error("expected miss after TTL expiry")
	}
	removed := c.Cleanup()
	if removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", c.Len())
	}
}

func TestDedupCache_DeterministicZeroTemperatureStillCaches(t *testing.T) {
	c := NewDedupCache(4, time.Minute)
	key := HashDedupKey([]uint32{5}, DedupKeyParams{MaxTokens: 10, Temperature: 0, TopP: 1, TopK: 0})
	c.Insert(key, []uint32{42})
	if _, ok := c.Get(key); !ok {
		t.Error("temperature=0 requests should still be cacheable")
	}
}

func TestDedupCache_EvictsOldestOnOverflow(t *testing.T) {
	base := time.Unix(0, 0)
	tick := base
	c := NewDedupCache(2, time.Hour)
	c.now = func() time.Time { return tick }

	k1 := HashDedupKey([]uint32{1}, DedupKeyParams{MaxTokens: 1})
	k2 := HashDedupKey([]uint32{2}, DedupKeyParams{MaxTokens: 1})
	k3 := HashDedupKey([]uint32{3}, DedupKeyParams{MaxTokens: 1})

	c.Insert(k1, []uint32{1})
	tick = tick.Add(time.Second)
	c.Insert(k2, []uint32{2})
	tick = tick.Add(time.Second)
	c.Insert(k3, []uint32{3}) // overflow: evicts k1 (oldest)

	if _, ok := c.Get(k1); ok {
		t.Error("expected k1 evicted as oldest")
	}
	if _, ok := c.Get(k2); !ok {
		t.Error("expected k2 to survive")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("expected k3 to survive")
	}
}

func TestDedupCache_DifferentParamsProduceDifferentKeys(t *testing.T) {
	tokens := []uint32{1, 2, 3}
	k1 := HashDedupKey(tokens, DedupKeyParams{MaxTokens: 10, Temperature: 0.5})
	k2 := HashDedupKey(tokens, DedupKeyParams{MaxTokens: 10, Temperature: 0.6})
	if k1 == k2 {
		t.Error("different temperatures should hash to different keys")
	}
}
