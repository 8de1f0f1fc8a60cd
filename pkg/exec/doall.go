package exec

import (
	"context"
	"sync/atomic"

	"github.com/loom-run/loom/pkg/lanepool"
	"github.com/loom-run/loom/pkg/rangeutil"
	"github.com/loom-run/loom/pkg/stats"
)

type doAllLane struct {
	cursor atomic.Int64
	end    atomic.Int64
}

// DoAll applies fn to every item in rng exactly once, splitting rng into
// per-lane contiguous slices and, if opts.Steal is set, letting idle
// lanes steal half of a busier peer's remaining slice. fn must not push
// new work and must not depend on visitation order.
func DoAll[T any](ctx context.Context, pool *lanepool.Pool, mgr *stats.Manager, rng rangeutil.Range[T], opts Options, fn func(item T)) LoopStatistics {
	active := pool.ActiveThreads()
	_, span := startSpan(ctx, "DoAll", opts.LoopName, active)
	defer span.End()

	lanes := make([]doAllLane, active)
	for tid := 0; tid < active; tid++ {
		start, end := rng.Local(tid, active)
		lanes[tid].cursor.Store(int64(start))
		lanes[tid].end.Store(int64(end))
	}

	counters := newLoopCounters(active)
	pool.Run(active, func(tid int) {
		var n int64
		for {
			i, ok := claimNext(&lanes[tid])
			if !ok {
				if !opts.Steal {
					break
				}
				if !stealHalf(lanes, tid) {
					break
				}
				continue
			}
			fn(rng.At(int(i)))
			n++
		}
		counters.iterations.Update(tid, n)
	})

	result := counters.reduce()
	annotateFinal(span, result)
	report(mgr, opts.LoopName, opts.NoStats, result)
	return result
}

func claimNext(l *doAllLane) (int64, bool) {
	i := l.cursor.Add(1) - 1
	if i >= l.end.Load() {
		return 0, false
	}
	return i, true
}

// stealHalf looks for the peer with the largest remaining slice and
// takes the upper half of it via a single CAS on that peer's end
// pointer, claiming the stolen half as tid's own range.
func stealHalf(lanes []doAllLane, tid int) bool {
	victim := -1
	var bestRemaining int64
	for i := range lanes {
		if i == tid {
			continue
		}
		remaining := lanes[i].end.Load() - lanes[i].cursor.Load()
		if remaining > bestRemaining {
			bestRemaining = remaining
			victim = i
		}
	}
	if victim == -1 || bestRemaining < 2 {
		return false
	}
	oldEnd := lanes[victim].end.Load()
	cursor := lanes[victim].cursor.Load()
	remaining := oldEnd - cursor
	if remaining < 2 {
		return false
	}
	newEnd := cursor + remaining/2
	if !lanes[victim].end.CompareAndSwap(oldEnd, newEnd) {
		return false // lost the race; caller retries on its next claimNext failure
	}
	// The victim may have raced past our newEnd snapshot between the
	// read above and this CAS landing, claiming (and, while it still
	// saw the old end, executing) items up to its current cursor. Any
	// index below that point is either already executed or was claimed
	// and then rejected once the victim observed the new end; either
	// way it is not ours to take. Re-reading the cursor after the CAS
	// and clamping our start to it keeps the handoff exactly-once.
	start := newEnd
	if c := lanes[victim].cursor.Load(); c > start {
		start = c
	}
	if start >= oldEnd {
		return false
	}
	lanes[tid].cursor.Store(start)
	lanes[tid].end.Store(oldEnd)
	return true
}
