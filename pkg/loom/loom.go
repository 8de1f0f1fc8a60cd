// Package loom wires the lane pool, per-iteration synchronization
// primitives, and the statistics manager into a single process-wide
// handle: construct one Runtime, run parallel loops against it, and
// shut it down once at process exit.
package loom

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/loom-run/loom/pkg/alloc"
	"github.com/loom-run/loom/pkg/barrier"
	"github.com/loom-run/loom/pkg/config"
	"github.com/loom-run/loom/pkg/lanepool"
	"github.com/loom-run/loom/pkg/logging"
	"github.com/loom-run/loom/pkg/stats"
	"github.com/loom-run/loom/pkg/termination"
)

var log = logging.Component("loom/loom")

// only one Runtime may be constructed at a time; a second concurrent
// construction almost certainly means a caller meant to reuse the first
// one instead of standing up a competing lane pool.
var constructed atomic.Bool

// Runtime is the single entry point a host process holds: it owns the
// lane pool, a shared NUMA page pool, and the statistics manager every
// pkg/exec loop reports through, and builds barriers and termination
// detectors of the configured kind on demand.
type Runtime struct {
	opts config.Options

	pool  *lanepool.Pool
	pages *alloc.PagePool
	stats *stats.Manager

	shutdownOnce sync.Once
}

// Barrier is the subset of barrier.Barrier a Runtime hands out;
// re-exported so callers need not import pkg/barrier directly for the
// common case of "give me this Runtime's barrier".
type Barrier = barrier.Barrier

// New constructs a Runtime from opts, starting opts.MaxThreads lanes
// immediately. Only one Runtime may be live in a process at a time;
// construct it once near process start and hold the handle, matching
// the single-construction-point invariant the scheduler core assumes.
func New(opts config.Options) (*Runtime, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !constructed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("loom: a Runtime is already constructed in this process")
	}

	r := &Runtime{
		opts:  opts,
		pool:  lanepool.New(opts.MaxThreads, opts.Sockets),
		pages: alloc.NewPagePool(),
		stats: stats.NewManager(opts.StatFile, opts.PrintPerThreadStats),
	}
	if err := r.pool.SetActiveThreads(opts.DefaultActiveThreads); err != nil {
		constructed.Store(false)
		return nil, err
	}
	log.Info("runtime constructed", logging.Fields{
		"max_threads": opts.MaxThreads,
		"sockets":     opts.Sockets,
		"barrier":     string(opts.BarrierKind),
		"termination": string(opts.TerminationTopology),
	})
	return r, nil
}

// Pool returns the underlying lane pool, for callers that need direct
// access to Run/ActiveThreads/Socket beyond what Runtime re-exports.
func (r *Runtime) Pool() *lanepool.Pool { return r.pool }

// Pages returns the shared NUMA page pool every allocator in this
// process should be built on, so huge-page fallback state is process-
// wide rather than re-detected per allocator.
func (r *Runtime) Pages() *alloc.PagePool { return r.pages }

// Stats returns the statistics manager pkg/exec loops report through
// when given this Runtime's options as their Options.LoopName source.
func (r *Runtime) Stats() *stats.Manager { return r.stats }

// ActiveThreads is Pool().ActiveThreads().
func (r *Runtime) ActiveThreads() int { return r.pool.ActiveThreads() }

// SetActiveThreads is Pool().SetActiveThreads(n).
func (r *Runtime) SetActiveThreads(n int) error { return r.pool.SetActiveThreads(n) }

// NewBarrier builds a Barrier sized to the Runtime's current
// ActiveThreads, using the implementation opts.BarrierKind selected at
// construction.
func (r *Runtime) NewBarrier() Barrier {
	n := r.pool.ActiveThreads()
	switch r.opts.BarrierKind {
	case config.BarrierSimple:
		return barrier.NewSimpleBarrier(n)
	default:
		return barrier.NewTopoBarrier(n)
	}
}

// NewTerminationDetector builds a Detector sized to ActiveThreads, using
// the topology opts.TerminationTopology selected at construction.
func (r *Runtime) NewTerminationDetector() *termination.Detector {
	topology, arity := r.TerminationTopology()
	return termination.NewDetector(r.pool.ActiveThreads(), topology, arity)
}

// TerminationTopology translates opts.TerminationTopology/TerminationArity
// into the pkg/termination and pkg/exec representation, so callers
// building exec.Options for a loop running on this Runtime can carry the
// Runtime's configured topology into ForEach instead of quietly falling
// back to Ring.
func (r *Runtime) TerminationTopology() (termination.Topology, int) {
	if r.opts.TerminationTopology == config.TerminationTree {
		return termination.Tree, r.opts.TerminationArity
	}
	return termination.Ring, r.opts.TerminationArity
}

// Options returns the Options this Runtime was constructed from.
func (r *Runtime) Options() config.Options { return r.opts }

// Shutdown tears down the lane pool and releases the page pool's held
// pages, in reverse construction order. Safe to call more than once;
// only the first call has effect. After Shutdown returns, a new Runtime
// may be constructed in this process.
func (r *Runtime) Shutdown() error {
	var releaseErr error
	r.shutdownOnce.Do(func() {
		releaseErr = r.pages.Release()
		r.pool.Shutdown()
		constructed.Store(false)
		log.Info("runtime shut down", logging.Fields{})
	})
	return releaseErr
}
