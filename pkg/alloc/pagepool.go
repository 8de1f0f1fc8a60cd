// Package alloc provides the fixed-size, power-of-two, and bump
// allocators that sit under per-lane and per-iteration allocation
// state, all backed by a single PagePool that reserves address space in
// large, page-aligned blocks via mmap rather than per-block OS syscalls.
package alloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loom-run/loom/pkg/logging"
)

var log = logging.Component("loom/alloc")

// PageSize is the block size PagePool hands out. 2MiB matches a typical
// transparent-huge-page size so the huge-page fast path and the portable
// fallback return identically sized blocks.
const PageSize = 2 << 20

// PagePool reserves large pages from the OS and hands them out one at a
// time. Huge pages are attempted first; failure is logged once and the
// pool falls back to ordinary anonymous pages for the remainder of the
// process's lifetime.
type PagePool struct {
	mu        sync.Mutex
	free      [][]byte
	huge      bool
	hugeTried bool
}

// NewPagePool constructs an empty pool. Pages are mapped lazily on first
// Get, not eagerly at construction.
func NewPagePool() *PagePool {
	return &PagePool{huge: true}
}

// Get returns one PageSize-sized page, reusing a previously Put page when
// available.
func (p *PagePool) Get() ([]byte, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		page := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return page, nil
	}
	huge := p.huge
	p.mu.Unlock()

	if huge {
		page, err := mmapPage(true)
		if err == nil {
			return page, nil
		}
		p.mu.Lock()
		if !p.hugeTried {
			p.hugeTried = true
			p.huge = false
			log.Warn("huge page allocation failed, falling back to ordinary pages", logging.Fields{"error": err.Error()})
		}
		p.mu.Unlock()
	}
	return mmapPage(false)
}

// Put returns a page to the pool for reuse. page must have been obtained
// from Get and must not be accessed again by the caller afterward.
func (p *PagePool) Put(page []byte) {
	if len(page) != PageSize {
		panic(fmt.Sprintf("alloc: Put with wrong page size %d, want %d", len(page), PageSize))
	}
	p.mu.Lock()
	p.free = append(p.free, page)
	p.mu.Unlock()
}

// Release unmaps every page currently sitting in the free list. Pages
// still checked out via Get are the caller's responsibility.
func (p *PagePool) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, page := range p.free {
		if err := unix.Munmap(page); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("alloc: munmap: %w", err)
		}
	}
	p.free = nil
	return firstErr
}

func mmapPage(huge bool) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if huge {
		flags |= unix.MAP_HUGETLB
	}
	page, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("alloc: mmap(huge=%v): %w", huge, err)
	}
	return page, nil
}
