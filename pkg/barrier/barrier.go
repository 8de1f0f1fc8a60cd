// Package barrier provides the two barrier implementations parallel
// loops rest on: a fast spinning barrier for the common case
// (TopoBarrier, which uses one flat arrival counter and does not group
// participants by socket), and
// a simple counting barrier usable when a loop's participant count
// varies between invocations.
package barrier

import (
	"sync"
	"sync/atomic"
)

// Barrier blocks each of n participants at Wait until all n have arrived,
// then releases them together. A Barrier instance may be Wait'ed on
// repeatedly; each round is independent of the last.
type Barrier interface {
	// Wait blocks the calling goroutine until n participants (the count
	// the Barrier was constructed or Reinit with) have all called Wait.
	Wait()
	// Reinit rearms the barrier for n participants. No participant may
	// be blocked in Wait when Reinit is called.
	Reinit(n int)
	// Name identifies the barrier implementation for logging and stats.
	Name() string
}

type paddedCounter struct {
	v int64
	_ [56]byte // cache-line pad so adjacent counters don't false-share
}

// TopoBarrier is a two-phase (fan-in, fan-out) barrier built on a flat
// arrival counter and a generation token, avoiding the lock contention a
// naive condition-variable barrier would hit at high thread counts.
type TopoBarrier struct {
	n          int64
	arrived    paddedCounter
	generation atomic.Int64
}

// NewTopoBarrier constructs a TopoBarrier for n participants.
func NewTopoBarrier(n int) *TopoBarrier {
	if n <= 0 {
		panic("barrier: n must be positive")
	}
	return &TopoBarrier{n: int64(n)}
}

// Reinit rearms the barrier for n participants. No participant may be
// blocked in Wait when Reinit is called.
func (b *TopoBarrier) Reinit(n int) {
	if n <= 0 {
		panic("barrier: n must be positive")
	}
	atomic.StoreInt64(&b.arrived.v, 0)
	b.n = int64(n)
}

// Name identifies this barrier implementation.
func (b *TopoBarrier) Name() string { return "topo" }

// Wait blocks until all n participants for the current generation have
// arrived, then releases them as a group.
func (b *TopoBarrier) Wait() {
	gen := b.generation.Load()
	if atomic.AddInt64(&b.arrived.v, 1) == b.n {
		atomic.StoreInt64(&b.arrived.v, 0)
		b.generation.Add(1)
		return
	}
	for b.generation.Load() == gen {
		// busy-wait: barriers guard short loop bodies, so spinning beats
		// the scheduling latency of a channel or condvar wakeup.
	}
}

// SimpleBarrier is a sync.WaitGroup-backed barrier whose participant
// count can change between rounds via Reinit, for loops whose
// ActiveThreads may be adjusted between invocations.
type SimpleBarrier struct {
	mu sync.Mutex
	wg sync.WaitGroup
	n  int
}

// NewSimpleBarrier constructs a SimpleBarrier for n participants.
func NewSimpleBarrier(n int) *SimpleBarrier {
	s := &SimpleBarrier{}
	s.Reinit(n)
	return s
}

// Reinit rearms the barrier for n participants. Must not be called
// while any participant is blocked in Wait.
func (s *SimpleBarrier) Reinit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = n
	s.wg = sync.WaitGroup{}
	s.wg.Add(n)
}

// Name identifies this barrier implementation.
func (s *SimpleBarrier) Name() string { return "simple" }

// Wait blocks until n participants have all called Wait.
func (s *SimpleBarrier) Wait() {
	s.wg.Done()
	s.wg.Wait()
}
