package exec

import (
	"context"

	"github.com/loom-run/loom/pkg/lanepool"
	"github.com/loom-run/loom/pkg/stats"
)

// OnEach invokes fn exactly once per active lane, passing the lane's tid
// and the snapshotted active thread count. Must be called outside any
// other executor invocation on the same pool.
func OnEach(ctx context.Context, pool *lanepool.Pool, mgr *stats.Manager, opts Options, fn func(tid, active int)) LoopStatistics {
	active := pool.ActiveThreads()
	spanCtx, span := startSpan(ctx, "OnEach", opts.LoopName, active)
	defer span.End()
	_ = spanCtx

	counters := newLoopCounters(active)
	pool.Run(active, func(tid int) {
		fn(tid, active)
		counters.iterations.Update(tid, 1)
	})

	result := counters.reduce()
	annotateFinal(span, result)
	report(mgr, opts.LoopName, opts.NoStats, result)
	return result
}
