package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"
)

// DedupKeyParams carries the sampling parameters mixed into a dedup cache
// key, per spec §4.4: "sha256 over (tokens || max_tokens || temperature ||
// top_p || top_k) in little-endian."
type DedupKeyParams struct {
	MaxTokens   int32
	Temperature float64
	TopP        float64
	TopK        int32
}

// HashDedupKey computes the dedup cache key for tokens and params.
func HashDedupKey(tokens []uint32, params DedupKeyParams) [32]byte {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, t := range tokens {
		binary.LittleEndian.PutUint32(buf[:4], t)
		h.Write(buf[:4])
	}
	binary.LittleEndian.PutUint32(buf[:4], uint32(params.MaxTokens))
	h.Write(buf[:4])
	binary.LittleEndian.PutUint64(buf, math.Float64bits(params.Temperature))
	h.Write(buf)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(params.TopP))
	h.Write(buf)
	binary.LittleEndian.PutUint32(buf[:4], uint32(params.TopK))
	h.Write(buf[:4])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type dedupEntry struct {
	outputTokens []uint32
	insertedAt   time.Time
}

// DedupCache is a TTL+LRU map from (tokens, sampling params) hash to
// generated tokens (spec §4.4). now is injected so tests can control TTL
// expiry deterministically.
type DedupCache struct {
	capacity int
	ttl      time.Duration
	entries  map[[32]byte]*dedupEntry
	now      func() time.Time
}

// NewDedupCache creates a DedupCache with the given capacity and TTL,
// using time.Now for its clock.
func NewDedupCache(capacity int, ttl time.Duration) *DedupCache {
	return &DedupCache{capacity: capacity, ttl: ttl, entries: make(map[[32]byte]*dedupEntry), now: time.Now}
}

// Get returns the cached output for key if present and unexpired.
func (c *DedupCache) Get(key [32]byte) ([]uint32, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		return nil, false
	}
	return e.outputTokens, true
}

// Insert stores outputTokens under key, evicting the oldest entry if the
// cache is at capacity. Callers choose whether to call Insert for
// non-deterministic sampling params (spec §9 Open Question) — the cache
// itself applies no policy.
func (c *DedupCache) Insert(key [32]byte, outputTokens []uint32) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = &dedupEntry{outputTokens: outputTokens, insertedAt: c.now()}
}

// Cleanup removes all expired entries and returns the number removed.
func (c *DedupCache) Cleanup() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *DedupCache) evictOldest() {
	var oldestKey [32]byte
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of entries currently stored (including expired
// ones not yet cleaned up).
func (c *DedupCache) Len() int { return len(c.entries) }
