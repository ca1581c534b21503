// Package cache implements the Prompt Prefix Cache (spec §4.3) and the
// Output Dedup Cache (spec §4.4): an LRU map from token-prefix hash to
// precomputed KV bytes, and a TTL+LRU map from (tokens, sampling params)
// hash to generated tokens.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
)

// hashPrefix hashes a token prefix as little-endian uint32s per token,
// matching spec §4.3 ("sha256 of the prefix token bytes, little-endian
// per token") and the teacher's sim/kvcache.go hashTokens shape.
func hashPrefix(tokens []uint32) [32]byte {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, t := range tokens {
		binary.LittleEndian.PutUint32(buf, t)
		h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type prefixEntry struct {
	kvBytes  []byte
	seqLen   int
	lastUsed uint64
}

// PrefixCache is an LRU map from token-prefix hash to opaque precomputed
// KV bytes. Eviction and MRU promotion use a monotone counter (design
// note 6) rather than a linked list, acceptable at the bounded capacities
// this cache runs at.
type PrefixCache struct {
	capacity int
	entries  map[[32]byte]*prefixEntry
	counter  uint64
}

// NewPrefixCache creates a PrefixCache holding at most capacity entries.
func NewPrefixCache(capacity int) *PrefixCache {
	return &PrefixCache{
		capacity: capacity,
		entries:  make(map[[32]byte]*prefixEntry),
	}
}

// FindPrefix scans from len(tokens) down to 1 and returns the longest
// cached prefix, promoting the hit to MRU. Returns (0, nil, false) on a
// total miss.
func (c *PrefixCache) FindPrefix(tokens []uint32) (prefixLen int, kvBytes []byte, ok bool) {
	for n := len(tokens); n >= 1; n-- {
		h := hashPrefix(tokens[:n])
		if e, found := c.entries[h]; found {
			c.counter++
			e.lastUsed = c.counter
			return n, e.kvBytes, true
		}
	}
	return 0, nil, false
}

// Insert stores kvBytes for the given token prefix, evicting the least
// recently used entry if the cache is at capacity. Stored bytes are
// opaque to the cache; semantics are caller-defined.
func (c *PrefixCache) Insert(tokens []uint32, kvBytes []byte, seqLen int) {
	h := hashPrefix(tokens)
	if _, exists := c.entries[h]; !exists && len(c.entries) >= c.capacity {
		c.evictLRU()
	}
	c.counter++
	c.entries[h] = &prefixEntry{kvBytes: kvBytes, seqLen: seqLen, lastUsed: c.counter}
}

// Touch promotes the exact-match entry for tokens to MRU without
// returning it, used to exercise the "touching [1] then inserting"
// eviction scenario from spec §8.
func (c *PrefixCache) Touch(tokens []uint32) bool {
	h := hashPrefix(tokens)
	e, ok := c.entries[h]
	if !ok {
		return false
	}
	c.counter++
	e.lastUsed = c.counter
	return true
}

func (c *PrefixCache) evictLRU() {
	var oldestHash [32]byte
	var oldestUsed uint64
	first := true
	for h, e := range c.entries {
		if first || e.lastUsed < oldestUsed {
			oldestHash = h
			oldestUsed = e.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestHash)
	}
}

// Len returns the number of cached entries.
func (c *PrefixCache) Len() int { return len(c.entries) }
