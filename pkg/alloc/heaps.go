package alloc

import (
	"fmt"
	"sync"
)

// FixedSizeHeap carves PagePool pages into fixed-size blocks and freelists
// them. Every block is the same size, so carving is a pointer bump plus
// an occasional page pull.
type FixedSizeHeap struct {
	blockSize int
	pages     *PagePool
	mu        sync.Mutex
	free      [][]byte
	cur       []byte // unsliced remainder of the current page
}

// NewFixedSizeHeap builds a heap over pages, carving them into blockSize
// blocks. blockSize must evenly divide PageSize for pages to be reclaimed
// without fragmentation.
func NewFixedSizeHeap(pages *PagePool, blockSize int) *FixedSizeHeap {
	if blockSize <= 0 || PageSize%blockSize != 0 {
		panic(fmt.Sprintf("alloc: block size %d must evenly divide page size %d", blockSize, PageSize))
	}
	return &FixedSizeHeap{blockSize: blockSize, pages: pages}
}

// Alloc returns one blockSize-sized block.
func (h *FixedSizeHeap) Alloc() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.free); n > 0 {
		b := h.free[n-1]
		h.free = h.free[:n-1]
		return b, nil
	}
	if len(h.cur) < h.blockSize {
		page, err := h.pages.Get()
		if err != nil {
			return nil, err
		}
		h.cur = page
	}
	b := h.cur[:h.blockSize]
	h.cur = h.cur[h.blockSize:]
	return b, nil
}

// Free returns a block for reuse within this heap. It does not return
// whole pages to the PagePool; pages live for the heap's lifetime.
func (h *FixedSizeHeap) Free(b []byte) {
	h.mu.Lock()
	h.free = append(h.free, b)
	h.mu.Unlock()
}

// Pow2Heap dispatches allocation requests of arbitrary size to a
// FixedSizeHeap sized to the next power of two, so a modest number of
// distinct block sizes covers an arbitrary request distribution.
type Pow2Heap struct {
	pages *PagePool
	mu    sync.Mutex
	bins  map[int]*FixedSizeHeap
}

// NewPow2Heap builds a Pow2Heap over pages.
func NewPow2Heap(pages *PagePool) *Pow2Heap {
	return &Pow2Heap{pages: pages, bins: make(map[int]*FixedSizeHeap)}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Alloc returns a block of at least size bytes, rounded up to the
// nearest power of two.
func (h *Pow2Heap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc: size must be positive, got %d", size)
	}
	bin := nextPow2(size)
	if bin > PageSize {
		return nil, fmt.Errorf("alloc: size %d exceeds page size %d", size, PageSize)
	}
	h.mu.Lock()
	fh, ok := h.bins[bin]
	if !ok {
		fh = NewFixedSizeHeap(h.pages, bin)
		h.bins[bin] = fh
	}
	h.mu.Unlock()
	block, err := fh.Alloc()
	if err != nil {
		return nil, err
	}
	return block[:size], nil
}

// Free returns a block obtained from Alloc, keyed by its original size
// argument (the pow2 bin it was carved from).
func (h *Pow2Heap) Free(b []byte, originalSize int) {
	bin := nextPow2(originalSize)
	h.mu.Lock()
	fh := h.bins[bin]
	h.mu.Unlock()
	if fh == nil {
		return
	}
	fh.Free(b[:cap(b)][:bin])
}

// BumpHeap is a page-backed, single-writer bump allocator with no Free:
// individual allocations are never reclaimed; Reset releases everything
// it has handed out at once. ForEach builds one per iteration when
// Options.PerIterAlloc is set.
type BumpHeap struct {
	pages   *PagePool
	current []byte
	held    [][]byte
}

// NewBumpHeap builds an empty BumpHeap over pages.
func NewBumpHeap(pages *PagePool) *BumpHeap {
	return &BumpHeap{pages: pages}
}

// Alloc bumps size bytes off the current page, pulling a fresh page from
// the pool when the current one is exhausted. Not safe for concurrent
// use; callers give each lane its own BumpHeap.
func (h *BumpHeap) Alloc(size int) ([]byte, error) {
	if size > PageSize {
		return nil, fmt.Errorf("alloc: size %d exceeds page size %d", size, PageSize)
	}
	if len(h.current) < size {
		page, err := h.pages.Get()
		if err != nil {
			return nil, err
		}
		h.held = append(h.held, page)
		h.current = page
	}
	b := h.current[:size]
	h.current = h.current[size:]
	return b, nil
}

// Reset returns every page this BumpHeap has touched back to the
// PagePool, invalidating all previously returned allocations.
func (h *BumpHeap) Reset() {
	for _, page := range h.held {
		h.pages.Put(page)
	}
	h.held = nil
	h.current = nil
}
