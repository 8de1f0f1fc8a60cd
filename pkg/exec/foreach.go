package exec

import (
	"context"
	"sync/atomic"

	"github.com/loom-run/loom/pkg/alloc"
	"github.com/loom-run/loom/pkg/lanepool"
	"github.com/loom-run/loom/pkg/lockctx"
	"github.com/loom-run/loom/pkg/loomerr"
	"github.com/loom-run/loom/pkg/rangeutil"
	"github.com/loom-run/loom/pkg/stats"
	"github.com/loom-run/loom/pkg/termination"
	"github.com/loom-run/loom/pkg/worklist"
)

// ForEach drains wl, applying fn to each item. fn may push new items
// into the supplied Context; a Conflict error returned by fn (directly,
// or via Context.Acquire) causes the item to be re-pushed and retried,
// never surfacing past ForEach. rng, if non-nil, seeds wl with each
// lane's local slice before draining begins (push_initial); pass nil to
// drain a worklist an earlier phase already populated.
func ForEach[T any](ctx context.Context, pool *lanepool.Pool, mgr *stats.Manager, wl worklist.Worklist[T], rng rangeutil.Range[T], opts Options, fn func(item T, ictx *Context[T]) error) LoopStatistics {
	active := pool.ActiveThreads()
	_, span := startSpan(ctx, "ForEach", opts.LoopName, active)
	defer span.End()

	if rng != nil {
		seedInitial(wl, rng, active)
	}

	detector := termination.NewDetector(active, opts.TerminationTopology, opts.TerminationArity)
	var broken atomic.Bool
	counters := newLoopCounters(active)

	pool.Run(active, func(tid int) {
		var iterations, commits, pushes, conflicts int64
		for {
			if opts.ParallelBreak && broken.Load() {
				break
			}
			item, ok := wl.Pop(tid)
			if !ok {
				detector.ClearActive(tid)
				if wl.Empty() && detector.Poll() {
					break
				}
				continue
			}
			detector.MarkActive(tid)
			iterations++

			ictx := newIterationContext[T](tid, opts)
			err := fn(item, ictx)
			if err == nil || isKind(err, loomerr.FailSafe) {
				if ictx.lock != nil {
					ictx.lock.Commit()
				}
				if ictx.bump != nil {
					ictx.bump.Reset()
				}
				commits++
				for _, p := range ictx.pushed {
					if opts.NoPushes {
						panic("exec: ForEach operator pushed work with Options.NoPushes set")
					}
					wl.Push(tid, p)
					pushes++
				}
				continue
			}

			switch {
			case isKind(err, loomerr.Conflict):
				if ictx.lock != nil {
					ictx.lock.Cancel()
				}
				if ictx.bump != nil {
					ictx.bump.Reset()
				}
				wl.Push(tid, item) // retry the original item, not any partial pushes
				conflicts++
			case isKind(err, loomerr.Break):
				if ictx.lock != nil {
					ictx.lock.Cancel()
				}
				if ictx.bump != nil {
					ictx.bump.Reset()
				}
				if opts.ParallelBreak {
					broken.Store(true)
				}
			default:
				loomerr.Abort("loom/exec", err)
				return
			}
		}
		counters.iterations.Update(tid, iterations)
		counters.commits.Update(tid, commits)
		counters.pushes.Update(tid, pushes)
		counters.conflicts.Update(tid, conflicts)
	})

	result := counters.reduce()
	annotateFinal(span, result)
	report(mgr, opts.LoopName, opts.NoStats, result)
	return result
}

func seedInitial[T any](wl worklist.Worklist[T], rng rangeutil.Range[T], active int) {
	for tid := 0; tid < active; tid++ {
		start, end := rng.Local(tid, active)
		for i := start; i < end; i++ {
			wl.Push(tid, rng.At(i))
		}
	}
}

func newIterationContext[T any](tid int, opts Options) *Context[T] {
	c := &Context[T]{tid: tid}
	if !opts.DisableConflictDetection {
		c.lock = lockctx.New()
	}
	if opts.PerIterAlloc {
		c.bump = alloc.NewBumpHeap(opts.Pages)
	}
	return c
}

func isKind(err error, kind loomerr.Kind) bool {
	c, ok := err.(*loomerr.Classified)
	return ok && c.Kind == kind
}
