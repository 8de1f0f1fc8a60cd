package worklist

import (
	"sync"

	"github.com/loom-run/loom/pkg/barrier"
)

// OBIM (ordered-by-integer-metric) processes items in non-decreasing
// priority-bucket order: all items in the lowest open bucket are
// exhausted before any lane advances to the next. Each bucket is itself
// an unordered ChunkedLIFO, so priority only constrains which bucket a
// lane draws from, not the order within it.
//
// By default, "advances to the next" is approximate: a lane free to
// pull from a later bucket while a peer is still behind it may do so,
// trading strict ordering for throughput. EnableBarrierMode trades that
// throughput back for the strict guarantee: no lane may pop from bucket
// j+1 until every lane has found bucket j empty at the same rendezvous,
// synchronized via a shared barrier.Barrier sized to numLanes.
type OBIM[T any] struct {
	numLanes, chunkCapacity int
	priority                func(T) int

	mu      sync.Mutex
	buckets map[int]*ChunkedLIFO[T]
	order   []int // sorted bucket keys, rebuilt lazily on Push
	dirty   bool
	current int // barrier mode only: index into order of the shared floor

	barrierMode bool
	bar         barrier.Barrier
}

// NewOBIM constructs an OBIM that buckets items by priority(item).
func NewOBIM[T any](numLanes, chunkCapacity int, priority func(T) int) *OBIM[T] {
	return &OBIM[T]{
		numLanes:      numLanes,
		chunkCapacity: chunkCapacity,
		priority:      priority,
		buckets:       make(map[int]*ChunkedLIFO[T]),
	}
}

// EnableBarrierMode switches this OBIM into strict bucket-by-bucket
// execution: bar must be sized to numLanes, and every lane popping from
// this worklist must be one of those numLanes participants (a lane that
// stops calling Pop without also stopping calling Wait deadlocks the
// rest). Call before the first Pop; not safe to toggle mid-drain.
func (w *OBIM[T]) EnableBarrierMode(bar barrier.Barrier) {
	w.barrierMode = true
	w.bar = bar
}

func (w *OBIM[T]) bucketFor(key int) *ChunkedLIFO[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.buckets[key]
	if !ok {
		b = NewChunkedLIFO[T](w.numLanes, w.chunkCapacity)
		w.buckets[key] = b
		w.dirty = true
	}
	return b
}

func (w *OBIM[T]) Push(tid int, item T) {
	key := w.priority(item)
	w.bucketFor(key).Push(tid, item)
}

// Pop returns an item from the lowest-keyed bucket that still has work.
// Outside barrier mode every call rescans the buckets from the lowest
// key, so an item pushed into a bucket that was already drained is
// returned ahead of items in higher buckets. Under
// EnableBarrierMode, Pop additionally guarantees no item from bucket j+1
// is returned to any lane until every lane has rendezvoused having found
// bucket j empty.
func (w *OBIM[T]) Pop(tid int) (T, bool) {
	if w.barrierMode {
		return w.popBarrier(tid)
	}
	var zero T
	for {
		key, bucket, ok := w.lowestNonemptyBucket()
		if !ok {
			return zero, false
		}
		if item, ok := bucket.Pop(tid); ok {
			return item, true
		}
		// This bucket looked nonempty but every lane raced us to it;
		// move on and let the next Pop re-scan from the current floor.
		_ = key
	}
}

// popBarrier implements Pop's barrier-mode discipline: a lane that finds
// the shared current bucket empty rendezvouses with every other lane
// before anyone may move the shared floor past it, and rendezvouses a
// second time after the (possible) advance so every lane observes the
// new floor before racing to pop from it.
func (w *OBIM[T]) popBarrier(tid int) (T, bool) {
	var zero T
	for {
		bucket, idx, ok := w.currentBarrierBucket()
		if !ok {
			return zero, false
		}
		if item, ok := bucket.Pop(tid); ok {
			return item, true
		}
		// This lane sees nothing left in the floor bucket. Rendezvous
		// with every other lane before anyone may consider it settled.
		w.bar.Wait()
		w.mu.Lock()
		w.advanceBarrierLocked(idx)
		w.mu.Unlock()
		// Second rendezvous: ensures the advance above (if this lane's
		// peers raced ahead of it) is visible to every lane before any
		// of them retries currentBarrierBucket, per Barrier's ordering
		// guarantee that writes before Wait are visible after a peer's
		// matching Wait returns.
		w.bar.Wait()
	}
}

// currentBarrierBucket returns the bucket at the shared floor under
// barrier mode, and whether any bucket remains to drain.
func (w *OBIM[T]) currentBarrierBucket() (*ChunkedLIFO[T], int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirty {
		w.rebuildOrderLocked()
	}
	if w.current >= len(w.order) {
		return nil, w.current, false
	}
	return w.buckets[w.order[w.current]], w.current, true
}

// advanceBarrierLocked moves the shared floor past idx, called once
// every lane has rendezvoused having found it empty. Re-checks under the
// lock in case a push committed by another lane's iteration (possible
// between the rendezvous and this call) landed a new item in idx; if so
// the floor stays put and the next round of Pop calls will drain it.
func (w *OBIM[T]) advanceBarrierLocked(idx int) {
	if w.dirty {
		w.rebuildOrderLocked()
	}
	if w.current != idx {
		return // a peer already advanced past idx
	}
	if idx < len(w.order) {
		if b := w.buckets[w.order[idx]]; b != nil && !b.Empty() {
			return
		}
	}
	w.current++
}

func (w *OBIM[T]) lowestNonemptyBucket() (int, *ChunkedLIFO[T], bool) {
	w.mu.Lock()
	if w.dirty {
		w.rebuildOrderLocked()
	}
	order := w.order
	w.mu.Unlock()

	for _, key := range order {
		w.mu.Lock()
		b := w.buckets[key]
		w.mu.Unlock()
		if b != nil && !b.Empty() {
			return key, b, true
		}
	}
	return 0, nil, false
}

func (w *OBIM[T]) rebuildOrderLocked() {
	order := make([]int, 0, len(w.buckets))
	for k := range w.buckets {
		order = append(order, k)
	}
	// insertion sort: bucket counts stay small in practice (delta-step
	// phases), so this avoids pulling in sort for a handful of keys.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j-1] > order[j]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	w.order = order
	w.dirty = false
}

func (w *OBIM[T]) Empty() bool {
	w.mu.Lock()
	buckets := make([]*ChunkedLIFO[T], 0, len(w.buckets))
	for _, b := range w.buckets {
		buckets = append(buckets, b)
	}
	w.mu.Unlock()
	for _, b := range buckets {
		if !b.Empty() {
			return false
		}
	}
	return true
}

// DeltaStep wraps an OBIM with the delta-stepping priority rule used by
// shortest-path style algorithms: an item's bucket is its distance
// divided by delta, so items within the same delta-wide band are
// processed without ordering between them, relaxing the full-priority-
// queue requirement in exchange for far less contention.
type DeltaStep[T any] struct {
	*OBIM[T]
	delta int
}

// NewDeltaStep constructs a DeltaStep worklist. dist extracts the
// priority-determining distance from an item; delta is the band width in
// the same units as dist.
func NewDeltaStep[T any](numLanes, chunkCapacity, delta int, dist func(T) int) *DeltaStep[T] {
	if delta <= 0 {
		delta = 1
	}
	priority := func(item T) int { return dist(item) / delta }
	return &DeltaStep[T]{OBIM: NewOBIM[T](numLanes, chunkCapacity, priority), delta: delta}
}

// Delta returns the band width this worklist was constructed with.
func (d *DeltaStep[T]) Delta() int { return d.delta }
