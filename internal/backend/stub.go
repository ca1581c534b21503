package backend

import (
	"math"
	"sync"
)

// StubBackend is a deterministic Backend used by tests and local demos:
// it echoes a fixed token for every decode step and never errors. It
// does not perform real inference, but it does produce deterministic
// per-position KV vectors of hiddenDim elements so a caller's paged KV
// store and attention kernels see real, reproducible data to write and
// score.
type StubBackend struct {
	modelID      string
	capabilities []string
	memoryBytes  int64
	echoToken    uint32
	maxTokens    int
	hiddenDim    int

	mu       sync.Mutex
	unloaded bool
}

// NewStubBackend creates a StubBackend for modelID that, once decoding
// starts, emits echoToken repeatedly for up to maxTokens tokens. KV rows
// handed back from Prefill/Decode have hiddenDim elements.
func NewStubBackend(modelID string, capabilities []string, memoryBytes int64, echoToken uint32, maxTokens int, hiddenDim int) *StubBackend {
	return &StubBackend{
		modelID:      modelID,
		capabilities: capabilities,
		memoryBytes:  memoryBytes,
		echoToken:    echoToken,
		maxTokens:    maxTokens,
		hiddenDim:    hiddenDim,
	}
}

func (s *StubBackend) ModelID() string        { return s.modelID }
func (s *StubBackend) Capabilities() []string { return s.capabilities }
func (s *StubBackend) MemoryUsage() int64     { return s.memoryBytes }

// vectorFor deterministically derives a hiddenDim-length float row from
// seed, so repeated calls for the same position produce the same row
// without needing real model weights.
func (s *StubBackend) vectorFor(seed uint64) []float32 {
	if s.hiddenDim <= 0 {
		return nil
	}
	row := make([]float32, s.hiddenDim)
	for i := range row {
		row[i] = float32(math.Sin(float64(seed+1) * float64(i+1)))
	}
	return row
}

// Prefill returns an empty KV blob (the stub has no opaque cache state
// to hand the Prompt Prefix Cache) alongside one deterministic key/value
// row per newly-processed position.
func (s *StubBackend) Prefill(promptTokens []uint32, cachedPrefixLen int) (PrefillResult, error) {
	var keys, values [][]float32
	for i := cachedPrefixLen; i < len(promptTokens); i++ {
		seed := uint64(promptTokens[i])*1000 + uint64(i)
		keys = append(keys, s.vectorFor(seed))
		values = append(values, s.vectorFor(seed+1))
	}
	return PrefillResult{KVBytes: []byte{}, Keys: keys, Values: values}, nil
}

// Decode emits echoToken until tokensGenerated reaches maxTokens, along
// with the new position's key/value row and a query vector (equal to
// the key row here, standing in for a real backend's distinct query
// projection).
func (s *StubBackend) Decode(seqID uint64, tokensGenerated int) (DecodeResult, error) {
	seed := seqID*1000000 + uint64(tokensGenerated)
	key := s.vectorFor(seed)
	value := s.vectorFor(seed + 1)
	finished := tokensGenerated+1 >= s.maxTokens
	return DecodeResult{Token: s.echoToken, Finished: finished, Query: key, Key: key, Value: value}, nil
}

// Unload marks the stub as torn down; idempotent.
func (s *StubBackend) Unload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloaded = true
	return nil
}

// Unloaded reports whether Unload has been called, for test assertions.
func (s *StubBackend) Unloaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unloaded
}
