// Package exec implements the three parallel loop executors — OnEach,
// DoAll, and ForEach — plus the ParaMeter profiling variant and the
// per-loop LoopStatistics every executor reports through a
// stats.Manager.
package exec

import (
	"github.com/loom-run/loom/pkg/alloc"
	"github.com/loom-run/loom/pkg/termination"
)

// Options configures a single executor invocation. The zero value is a
// valid, minimal configuration: no statistics tag, no stealing, conflict
// detection on, ring termination detection.
type Options struct {
	// LoopName tags statistics and the OTel span for this invocation.
	// An empty LoopName suppresses the statistics report; the span is
	// still opened, under the name "unnamed-loop".
	LoopName string
	// NoStats suppresses the summary LoopStatistics report even when
	// LoopName is set.
	NoStats bool
	// Steal enables DoAll's work-stealing fallback once a lane
	// exhausts its local slice.
	Steal bool
	// ChunkSize is carried on Options but no executor reads it: DoAll
	// always steals half of a peer's remaining slice, and ForEach drains
	// whatever worklist the caller passes in, whose chunk capacity is set
	// when that worklist is constructed.
	ChunkSize uint32
	// NoPushes asserts fn never pushes new work in ForEach; violating
	// it is a programming error, not a recoverable condition.
	NoPushes bool
	// DisableConflictDetection skips installing a lockctx.Context per
	// iteration, for operators already known to touch disjoint state.
	DisableConflictDetection bool
	// PerIterAlloc installs a fresh alloc.BumpHeap per iteration,
	// reset on both commit and cancel.
	PerIterAlloc bool
	// Pages backs PerIterAlloc's bump heaps; required when
	// PerIterAlloc is set.
	Pages *alloc.PagePool
	// ParallelBreak lets fn request an early, cooperative stop: once
	// any lane observes the break flag, lanes drain in-flight work but
	// do not pop further items.
	ParallelBreak bool
	// TerminationTopology selects the order in which ForEach's
	// termination.Detector checks lane activity flags. The zero value is
	// termination.Ring.
	TerminationTopology termination.Topology
	// TerminationArity is the fan-in tree's branching factor when
	// TerminationTopology is termination.Tree; ignored otherwise.
	TerminationArity int
}

func (o Options) chunkSize() int {
	if o.ChunkSize == 0 {
		return 64
	}
	return int(o.ChunkSize)
}
