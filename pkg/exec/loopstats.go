package exec

import (
	"github.com/loom-run/loom/pkg/reduce"
	"github.com/loom-run/loom/pkg/stats"
)

// LoopStatistics are the four counters every executor tracks per lane
// and reports, under LoopName, once the loop reaches quiescence:
// iterations attempted, iterations committed, items pushed, and
// conflicts encountered. do_all-family loops never populate Commits or
// Conflicts since they have no commit/retry concept.
type LoopStatistics struct {
	Iterations int64
	Commits    int64
	Pushes     int64
	Conflicts  int64
}

// loopCounters accumulates per-lane partials during a loop and reduces
// them into a LoopStatistics at teardown.
type loopCounters struct {
	iterations *reduce.Accumulator[int64]
	commits    *reduce.Accumulator[int64]
	pushes     *reduce.Accumulator[int64]
	conflicts  *reduce.Accumulator[int64]
}

func newLoopCounters(numLanes int) *loopCounters {
	return &loopCounters{
		iterations: reduce.NewAccumulator[int64](numLanes),
		commits:    reduce.NewAccumulator[int64](numLanes),
		pushes:     reduce.NewAccumulator[int64](numLanes),
		conflicts:  reduce.NewAccumulator[int64](numLanes),
	}
}

func (c *loopCounters) reduce() LoopStatistics {
	return LoopStatistics{
		Iterations: c.iterations.Reduce(),
		Commits:    c.commits.Reduce(),
		Pushes:     c.pushes.Reduce(),
		Conflicts:  c.conflicts.Reduce(),
	}
}

// report publishes the reduced LoopStatistics under region=loopname
// unless name is empty or noStats is set.
func report(mgr *stats.Manager, name string, noStats bool, s LoopStatistics) {
	if mgr == nil || name == "" || noStats {
		return
	}
	mgr.AddInt(0, name, "iterations", s.Iterations, stats.Sum)
	mgr.AddInt(0, name, "commits", s.Commits, stats.Sum)
	mgr.AddInt(0, name, "pushes", s.Pushes, stats.Sum)
	mgr.AddInt(0, name, "conflicts", s.Conflicts, stats.Sum)
}
