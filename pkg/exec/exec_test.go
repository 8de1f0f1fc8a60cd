package exec

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-run/loom/pkg/alloc"
	"github.com/loom-run/loom/pkg/lanepool"
	"github.com/loom-run/loom/pkg/lockctx"
	"github.com/loom-run/loom/pkg/loomerr"
	"github.com/loom-run/loom/pkg/rangeutil"
	"github.com/loom-run/loom/pkg/stats"
	"github.com/loom-run/loom/pkg/worklist"
)

func TestOnEachInvokesEveryLane(t *testing.T) {
	pool := lanepool.New(4, 1)
	defer pool.Shutdown()

	var count int64
	result := OnEach(context.Background(), pool, nil, Options{}, func(tid, active int) {
		atomic.AddInt64(&count, 1)
		assert.Equal(t, 4, active)
	})
	assert.EqualValues(t, 4, count)
	assert.EqualValues(t, 4, result.Iterations)
}

func TestDoAllVisitsEveryItemExactlyOnce(t *testing.T) {
	pool := lanepool.New(4, 1)
	defer pool.Shutdown()

	data := make([]int, 1000)
	for i := range data {
		data[i] = i
	}
	rng := rangeutil.NewSlice(data)

	seen := make([]int32, len(data))
	DoAll[int](context.Background(), pool, nil, rng, Options{}, func(item int) {
		atomic.AddInt32(&seen[item], 1)
	})
	for i, c := range seen {
		assert.EqualValues(t, 1, c, "item %d visited %d times", i, c)
	}
}

func TestDoAllWithStealingVisitsEveryItemExactlyOnce(t *testing.T) {
	pool := lanepool.New(8, 1)
	defer pool.Shutdown()

	data := make([]int, 2000)
	for i := range data {
		data[i] = i
	}
	rng := rangeutil.NewSlice(data)

	seen := make([]int32, len(data))
	DoAll[int](context.Background(), pool, nil, rng, Options{Steal: true}, func(item int) {
		atomic.AddInt32(&seen[item], 1)
	})
	for i, c := range seen {
		assert.EqualValues(t, 1, c, "item %d visited %d times", i, c)
	}
}

func TestForEachDrainsAllPushedWork(t *testing.T) {
	pool := lanepool.New(4, 1)
	defer pool.Shutdown()

	data := []int{1, 2, 3, 4}
	rng := rangeutil.NewSlice(data)
	wl := worklist.NewChunkedLIFO[int](4, 8)

	var processed int64
	ForEach[int](context.Background(), pool, nil, wl, rng, Options{DisableConflictDetection: true}, func(item int, ictx *Context[int]) error {
		atomic.AddInt64(&processed, 1)
		if item > 0 {
			ictx.Push(-item) // push once, never again, to bound the test
		}
		return nil
	})
	assert.EqualValues(t, 8, processed) // 4 originals + 4 pushed negatives
}

func TestForEachConflictRetriesItem(t *testing.T) {
	pool := lanepool.New(2, 1)
	defer pool.Shutdown()

	data := []int{1}
	rng := rangeutil.NewSlice(data)
	wl := worklist.NewChunkedLIFO[int](2, 8)

	var lock lockctx.Lockable
	var attempts int64

	mgr := stats.NewManager("", false)
	result := ForEach[int](context.Background(), pool, mgr, wl, rng, Options{LoopName: "conflict-test"}, func(item int, ictx *Context[int]) error {
		n := atomic.AddInt64(&attempts, 1)
		if n == 1 {
			// Force a conflict on the very first attempt by holding the
			// lock open in a separate context that never releases it
			// until after this attempt returns.
			held := lockctx.New()
			require.NoError(t, held.Acquire(&lock, lockctx.Write))
			err := ictx.Acquire(&lock, lockctx.Write)
			held.Cancel()
			return err
		}
		return ictx.Acquire(&lock, lockctx.Write)
	})
	assert.GreaterOrEqual(t, attempts, int64(2))
	assert.EqualValues(t, 1, result.Commits)
	assert.GreaterOrEqual(t, result.Conflicts, int64(1))
}

func TestForEachPerIterAllocServesBlocks(t *testing.T) {
	pool := lanepool.New(2, 1)
	defer pool.Shutdown()

	pages := alloc.NewPagePool()
	t.Cleanup(func() { _ = pages.Release() })

	data := []int{1, 2, 3}
	rng := rangeutil.NewSlice(data)
	wl := worklist.NewChunkedLIFO[int](2, 8)

	ForEach[int](context.Background(), pool, nil, wl, rng, Options{DisableConflictDetection: true, PerIterAlloc: true, Pages: pages}, func(item int, ictx *Context[int]) error {
		b, err := ictx.Alloc(16)
		require.NoError(t, err)
		assert.Len(t, b, 16)
		return nil
	})
}

func TestForEachParallelBreakStopsProcessing(t *testing.T) {
	pool := lanepool.New(4, 1)
	defer pool.Shutdown()

	data := make([]int, 200)
	for i := range data {
		data[i] = i
	}
	rng := rangeutil.NewSlice(data)
	wl := worklist.NewChunkedLIFO[int](4, 8)

	var processed int64
	ForEach[int](context.Background(), pool, nil, wl, rng, Options{DisableConflictDetection: true, ParallelBreak: true}, func(item int, ictx *Context[int]) error {
		atomic.AddInt64(&processed, 1)
		if item == 5 {
			return loomerr.New(loomerr.Break, "exec-test", assertErr{})
		}
		return nil
	})
	assert.Less(t, processed, int64(200))
}

type assertErr struct{}

func (assertErr) Error() string { return "break requested" }

func TestParaMeterReportsRounds(t *testing.T) {
	rounds := ParaMeter[int](nil, "", []int{1, 2, 3}, func(item int, push func(int)) {
		if item < 10 {
			push(item + 10)
		}
	})
	require.Len(t, rounds, 2)
	assert.Equal(t, 3, rounds[0].Parallelism)
	assert.Equal(t, 3, rounds[0].NeighborhoodSize)
	assert.Equal(t, 3, rounds[1].Parallelism)
	assert.Equal(t, 0, rounds[1].NeighborhoodSize)
}
