// Package backend defines the narrow capability surface the scheduler
// needs from a model execution engine. GGUF/ONNX execution itself is out
// of scope; this package is the seam, plus a deterministic stub useful
// for tests and local demos.
package backend

// PrefillResult carries the outcome of populating KV state for a prompt.
type PrefillResult struct {
	// KVBytes is an opaque blob the caller may hand to a Prompt Prefix
	// Cache for reuse by a later request sharing the same prefix.
	KVBytes []byte

	// Keys and Values carry one raw float row per newly-processed
	// position (i.e. len(promptTokens)-cachedPrefixLen rows, in order),
	// for the caller to quantize and store in its own page table (spec
	// §4.2, §4.8 step 3: "invoke the backend to populate remaining KV").
	Keys   [][]float32
	Values [][]float32
}

// DecodeResult carries one generated token and whether generation is
// complete.
type DecodeResult struct {
	Token    uint32
	Finished bool

	// Query is the attention query vector for the position about to be
	// generated, scored against the caller's page table before Key/Value
	// are written for it (spec §4.2's attention-scoring step).
	Query []float32
	// Key and Value are the raw float row for the newly generated
	// position, for the caller to quantize and write into its page
	// table (spec §4.8 step 4: "write KV").
	Key   []float32
	Value []float32
}

// Backend is the capability set a loaded model exposes to the scheduler:
// identity, resource accounting, and the two step primitives continuous
// batching pulls on (spec §1, §9 "dynamic dispatch for backends" /
// "cancellation vs. generator control flow"). Implementations are chosen
// at load time; the scheduler never branches on concrete backend
// identity.
type Backend interface {
	ModelID() string
	Capabilities() []string
	MemoryUsage() int64

	// Prefill processes promptTokens, optionally resuming from a cached
	// prefix of cachedPrefixLen tokens whose KV state is already
	// populated by the caller.
	Prefill(promptTokens []uint32, cachedPrefixLen int) (PrefillResult, error)

	// Decode produces exactly one token for the sequence identified by
	// seqID, given how many tokens have been generated so far.
	Decode(seqID uint64, tokensGenerated int) (DecodeResult, error)

	// Unload releases any resources the backend holds. Called once,
	// after the backend is fully drained.
	Unload() error
}
