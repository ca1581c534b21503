// Package kv implements the Paged KV Store and Quantized Kernels (spec
// §4.2): fixed-size token pages assigned to sequence positions, hosting
// Q8/Q4 key/value slots, plus the quantization and dot-product routines
// that operate on them.
package kv

import "math"

// PageTokens is the compile-time page size in tokens. Must be a power of
// two (spec §4.2); 16 matches the teacher's own default block size
// (sim/cmd/root.go's --block-size flag default).
const PageTokens = 16

// Page is a fixed PageTokens-slot block. Each slot holds a quantized K and
// V row of HiddenDim elements, plus a per-slot scale for K and V.
type Page struct {
	id        int
	hiddenDim int

	keys      [][]byte // len PageTokens, each len hiddenDim (Q8) or hiddenDim/2 (Q4)
	values    [][]byte
	keyScale  []float32 // len PageTokens
	valScale  []float32 // len PageTokens
	filled    int        // number of slots written

	refCount int
	inUse    bool
	prevFree *Page
	nextFree *Page
}

// ID returns the page's identifier, stable for the page's lifetime.
func (p *Page) ID() int { return p.id }

// SlotInPage returns pos mod PageTokens, the slot index within whichever
// page owns position pos.
func SlotInPage(pos int64) int {
	return int(pos % PageTokens)
}

// PageIndex returns pos / PageTokens, the index of the page that owns
// position pos.
func PageIndex(pos int64) int64 {
	return pos / PageTokens
}

// WriteSlot quantizes and stores a K/V row at the given in-page slot using
// Format f. Scales are computed from the raw float rows.
func (p *Page) WriteSlot(slot int, key, value []float32, f Format) {
	kScale := computeScale(key)
	vScale := computeScale(value)
	if f == Q4 {
		kScale, vScale = q4Scale(key), q4Scale(value)
	}
	p.keys[slot] = quantize(key, kScale, f)
	p.values[slot] = quantize(value, vScale, f)
	p.keyScale[slot] = kScale
	p.valScale[slot] = vScale
	if slot+1 > p.filled {
		p.filled = slot + 1
	}
}

// KeyRow returns the raw quantized key bytes and scale for slot.
func (p *Page) KeyRow(slot int) ([]byte, float32) {
	return p.keys[slot], p.keyScale[slot]
}

// ValueRow returns the raw quantized value bytes and scale for slot.
func (p *Page) ValueRow(slot int) ([]byte, float32) {
	return p.values[slot], p.valScale[slot]
}

// Filled reports how many slots in the page have been written.
func (p *Page) Filled() int { return p.filled }

// Pool is a bounded allocator for Page values, tracking free pages on a
// doubly-linked FIFO free list (O(1) pop and append, matching
// sim/kvcache.go's KVCacheState). Pages in use are never evicted:
// Allocate returns nil once every page is assigned.
type Pool struct {
	hiddenDim int
	format    Format
	capacity  int

	pages    []*Page
	free     map[int]*Page // id -> page, pages currently unassigned
	freeHead *Page
	freeTail *Page
}

// NewPool creates a Pool with room for capacity pages, each storing rows
// of hiddenDim elements in the given quantization Format.
func NewPool(capacity, hiddenDim int, f Format) *Pool {
	pool := &Pool{
		hiddenDim: hiddenDim,
		format:    f,
		capacity:  capacity,
		free:      make(map[int]*Page, capacity),
	}
	for i := 0; i < capacity; i++ {
		p := newPage(i, hiddenDim)
		pool.pages = append(pool.pages, p)
		pool.appendFree(p)
	}
	return pool
}

func newPage(id, hiddenDim int) *Page {
	return &Page{
		id:        id,
		hiddenDim: hiddenDim,
		keys:      make([][]byte, PageTokens),
		values:    make([][]byte, PageTokens),
		keyScale:  make([]float32, PageTokens),
		valScale:  make([]float32, PageTokens),
	}
}

// Capacity returns the total number of pages the pool manages.
func (pl *Pool) Capacity() int { return pl.capacity }

// Format returns the quantization format the pool's pages store rows
// in, so a caller writing raw float rows knows which packer to target.
func (pl *Pool) Format() Format { return pl.format }

// FreeCount returns the number of pages not currently assigned.
func (pl *Pool) FreeCount() int { return len(pl.free) }

// Allocate pops the least-recently-freed page, or returns nil when the
// pool is exhausted (spec §4.2: "returns None when the pool is
// exhausted").
func (pl *Pool) Allocate() *Page {
	head := pl.freeHead
	if head == nil {
		return nil
	}
	pl.removeFree(head)
	delete(pl.free, head.id)
	head.inUse = true
	head.refCount = 1
	head.filled = 0
	return head
}

// Release returns a page to the free list once its reference count drops
// to zero; it decrements the reference count and reports whether the page
// became free.
func (pl *Pool) Release(p *Page) bool {
	p.refCount--
	if p.refCount > 0 {
		return false
	}
	p.inUse = false
	pl.free[p.id] = p
	pl.appendFree(p)
	return true
}

func (pl *Pool) appendFree(p *Page) {
	p.nextFree = nil
	if pl.freeTail != nil {
		pl.freeTail.nextFree = p
		p.prevFree = pl.freeTail
		pl.freeTail = p
	} else {
		pl.freeHead = p
		pl.freeTail = p
		p.prevFree = nil
	}
}

func (pl *Pool) removeFree(p *Page) {
	if p.prevFree != nil {
		p.prevFree.nextFree = p.nextFree
	} else {
		pl.freeHead = p.nextFree
	}
	if p.nextFree != nil {
		p.nextFree.prevFree = p.prevFree
	} else {
		pl.freeTail = p.prevFree
	}
	p.prevFree = nil
	p.nextFree = nil
}

// Table is a sparse map from sequence position to the Page that owns it,
// assigning new pages on demand and bounded by the pool's capacity.
type Table struct {
	pool    *Pool
	pages   map[int64]*Page // page index -> *Page
	owner   map[int64]bool  // page index -> owned by this table (for release bookkeeping)
}

// NewTable creates a Table backed by pool.
func NewTable(pool *Pool) *Table {
	return &Table{pool: pool, pages: make(map[int64]*Page), owner: make(map[int64]bool)}
}

// Allocate ensures a page exists for position pos, allocating from the
// pool on demand. Returns nil if the pool is exhausted.
func (t *Table) Allocate(pos int64) *Page {
	idx := PageIndex(pos)
	if p, ok := t.pages[idx]; ok {
		return p
	}
	p := t.pool.Allocate()
	if p == nil {
		return nil
	}
	t.pages[idx] = p
	t.owner[idx] = true
	return p
}

// PageFor returns the page already assigned to pos, or nil if none.
func (t *Table) PageFor(pos int64) *Page {
	return t.pages[PageIndex(pos)]
}

// Release returns every page this table owns to the pool and clears the
// table. Called on sequence termination (spec: "freed with the owning
// sequence").
func (t *Table) Release() {
	for idx, p := range t.pages {
		if t.owner[idx] {
			t.pool.Release(p)
		}
	}
	t.pages = make(map[int64]*Page)
	t.owner = make(map[int64]bool)
}

// PageCount reports how many pages this table currently owns.
func (t *Table) PageCount() int { return len(t.pages) }

// Attend scores query against every written slot at positions [0, upto)
// using the pool's quantized dot-product kernels, softmax-normalizes the
// resulting scores, and returns the attention-weighted combination of
// the corresponding value rows (spec §4.2). The returned vector has
// length equal to the pool's hidden_dim and is all zero if no position
// has been written yet.
func (t *Table) Attend(query []float32, upto int64) []float32 {
	out := make([]float32, t.pool.hiddenDim)

	var scores []float32
	var positions []int64
	for pos := int64(0); pos < upto; pos++ {
		page := t.PageFor(pos)
		if page == nil {
			continue
		}
		slot := SlotInPage(pos)
		if slot >= page.Filled() {
			continue
		}
		keyRow, keyScale := page.KeyRow(slot)
		var score float32
		if t.pool.format == Q4 {
			score = DotQ4(keyRow, t.pool.hiddenDim, query, keyScale)
		} else {
			score = DotQ8(keyRow, query, keyScale)
		}
		scores = append(scores, score)
		positions = append(positions, pos)
	}
	if len(scores) == 0 {
		return out
	}

	weights := softmax(scores)
	for i, pos := range positions {
		page := t.PageFor(pos)
		slot := SlotInPage(pos)
		valueRow, valScale := page.ValueRow(slot)
		WeightedValues(valueRow, t.pool.format, t.pool.hiddenDim, valScale, weights[i], out)
	}
	return out
}

// softmax normalizes scores into a probability distribution, subtracting
// the max for numerical stability.
func softmax(scores []float32) []float32 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	weights := make([]float32, len(scores))
	var sum float32
	for i, s := range scores {
		e := float32(math.Exp(float64(s - max)))
		weights[i] = e
		sum += e
	}
	if sum == 0 {
		return weights
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}
