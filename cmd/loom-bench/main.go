// Command loom-bench is a conformance and demonstration harness for the
// loom scheduler core: each scenario below exercises one public-API path
// end to end and prints a one-line pass/fail summary, the way a quick
// smoke test would be run against a freshly built runtime before handing
// it to an analytics kernel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/loom-run/loom/examples/sssp"
	"github.com/loom-run/loom/pkg/config"
	"github.com/loom-run/loom/pkg/exec"
	"github.com/loom-run/loom/pkg/lockctx"
	"github.com/loom-run/loom/pkg/loom"
	"github.com/loom-run/loom/pkg/rangeutil"
	"github.com/loom-run/loom/pkg/worklist"
)

type scenario struct {
	name string
	run  func(rt *loom.Runtime) error
}

var scenarios = []scenario{
	{"do_all_increment", doAllIncrement},
	{"for_each_counter", forEachCounter},
	{"conflict_retry", conflictRetry},
	{"barrier_liveness", barrierLiveness},
	{"delta_step_sssp", deltaStepSSSP},
}

func main() {
	only := flag.String("scenario", "", "run a single named scenario instead of all of them")
	threads := flag.Int("threads", 0, "override max_threads (0 uses config.Default's detected CPU count)")
	flag.Parse()

	opts := config.Default()
	if *threads > 0 {
		opts.MaxThreads = *threads
		opts.DefaultActiveThreads = *threads
	}

	failed := false
	for _, s := range scenarios {
		if *only != "" && s.name != *only {
			continue
		}
		rt, err := loom.New(opts)
		if err != nil {
			fmt.Printf("FAIL %-20s construct runtime: %v\n", s.name, err)
			failed = true
			continue
		}
		if err := s.run(rt); err != nil {
			fmt.Printf("FAIL %-20s %v\n", s.name, err)
			failed = true
		} else {
			fmt.Printf("PASS %-20s\n", s.name)
		}
		if err := rt.Shutdown(); err != nil {
			fmt.Printf("FAIL %-20s shutdown: %v\n", s.name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// doAllIncrement increments every element of a fixed-size slice exactly
// once via DoAll, then checks every element landed at 1.
func doAllIncrement(rt *loom.Runtime) error {
	const n = 10_000
	data := make([]int64, n)
	rng := rangeutil.NewSlice(indexSlice(n))
	exec.DoAll[int](context.Background(), rt.Pool(), rt.Stats(), rng, exec.Options{LoopName: "bench-do-all", Steal: true}, func(i int) {
		data[i]++
	})
	for i, v := range data {
		if v != 1 {
			return fmt.Errorf("index %d: want 1, got %d", i, v)
		}
	}
	return nil
}

func indexSlice(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// forEachCounter drains a small worklist where every item pushes one
// child until a depth limit, checking the total processed count matches
// the expected fan-out.
func forEachCounter(rt *loom.Runtime) error {
	const depth = 8
	wl := worklist.NewChunkedLIFO[int](rt.ActiveThreads(), 16)
	wl.Push(0, depth)

	topology, arity := rt.TerminationTopology()
	var processed int64
	exec.ForEach[int](context.Background(), rt.Pool(), rt.Stats(), wl, nil, exec.Options{
		LoopName:                 "bench-for-each",
		DisableConflictDetection: true,
		TerminationTopology:      topology,
		TerminationArity:         arity,
	}, func(item int, ictx *exec.Context[int]) error {
		atomic.AddInt64(&processed, 1)
		if item > 0 {
			ictx.Push(item - 1)
		}
		return nil
	})
	if processed != depth+1 {
		return fmt.Errorf("want %d items processed, got %d", depth+1, processed)
	}
	return nil
}

// conflictRetry has every lane attempt to increment the same counter
// behind a shared Lockable, exercising the Conflict retry path; the
// final count must still equal the number of items processed exactly
// once each.
func conflictRetry(rt *loom.Runtime) error {
	const items = 200
	wl := worklist.NewChunkedLIFO[int](rt.ActiveThreads(), 16)
	rng := rangeutil.NewSlice(makeRange(items))
	for tid := 0; tid < rt.ActiveThreads(); tid++ {
		start, end := rng.Local(tid, rt.ActiveThreads())
		for i := start; i < end; i++ {
			wl.Push(tid, rng.At(i))
		}
	}

	var lock lockctx.Lockable
	var counter int64
	result := exec.ForEach[int](context.Background(), rt.Pool(), rt.Stats(), wl, nil, exec.Options{LoopName: "bench-conflict-retry"}, func(item int, ictx *exec.Context[int]) error {
		if err := ictx.Acquire(&lock, lockctx.Write); err != nil {
			return err
		}
		counter++
		return nil
	})
	if counter != items {
		return fmt.Errorf("want counter %d, got %d", items, counter)
	}
	if result.Conflicts == 0 && rt.ActiveThreads() > 1 {
		return fmt.Errorf("expected at least one conflict with %d lanes contending a single lock", rt.ActiveThreads())
	}
	return nil
}

func makeRange(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// barrierLiveness spins up ActiveThreads goroutines that each wait on
// the runtime's barrier twice, checking both rounds release together.
func barrierLiveness(rt *loom.Runtime) error {
	n := rt.ActiveThreads()
	b := rt.NewBarrier()

	var wg sync.WaitGroup
	var roundOne, roundTwo atomic.Int64
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Wait()
			roundOne.Add(1)
			b.Wait()
			roundTwo.Add(1)
		}()
	}
	wg.Wait()
	if int(roundOne.Load()) != n || int(roundTwo.Load()) != n {
		return fmt.Errorf("want %d arrivals each round, got %d and %d", n, roundOne.Load(), roundTwo.Load())
	}
	return nil
}

// deltaStepSSSP runs the example delta-stepping client over a small
// fixed graph and checks the known shortest distances.
func deltaStepSSSP(rt *loom.Runtime) error {
	g := sssp.Graph{
		0: {{To: 1, Weight: 4}, {To: 2, Weight: 1}},
		1: {{To: 3, Weight: 1}},
		2: {{To: 1, Weight: 1}, {To: 3, Weight: 5}},
		3: {},
	}
	topology, arity := rt.TerminationTopology()
	dist := sssp.Solve(context.Background(), rt.Pool(), rt.Stats(), g, 0, 1, topology, arity)
	want := []int64{0, 2, 1, 3}
	for i, w := range want {
		if dist[i] != w {
			return fmt.Errorf("node %d: want dist %d, got %d", i, w, dist[i])
		}
	}
	return nil
}
