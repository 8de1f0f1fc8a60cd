// Package lanepool implements the worker thread pool: a fixed set of
// long-lived workers ("lanes", the Go analogue of OS threads bound to a
// logical id) with NUMA-aware socket placement and a leader hierarchy,
// synchronously dispatched via Run.
//
// Lanes are started once at Pool construction and sleep on a per-lane
// channel until Run publishes a task; this models an Idle/Running/Exiting
// state machine far more directly than spawning a fresh goroutine per Run
// call would, and keeps a lane's tid a stable identity for the Pool's
// lifetime — per-thread storage elsewhere in the module depends on tid
// being stable, not just an arena offset.
package lanepool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/loom-run/loom/pkg/logging"
	"github.com/loom-run/loom/pkg/loomerr"
)

var log = logging.Component("loom/lanepool")

// State is a lane's position in the Idle -> Running -> Idle /
// Idle -> Exiting lifecycle. No other transitions exist.
type State int32

const (
	Idle State = iota
	Running
	Exiting
)

type lane struct {
	id    int
	tasks chan func(tid int)
	done  chan struct{}
	state atomic.Int32
}

// Pool is the process-wide worker thread pool. Construct exactly one per
// process via New; a Runtime built on top of it holds the single handle.
type Pool struct {
	maxThreads int
	sockets    int
	lanes      []*lane

	active atomic.Int32 // ActiveThreads snapshot
	entered atomic.Int32 // re-entrancy guard for Run

	idMu     sync.RWMutex
	idToTid  map[uint64]int // goroutine id -> tid, populated at lane start

	shutdownOnce sync.Once
}

// New starts maxThreads lanes and returns the pool. sockets is the number
// of NUMA sockets to model; tids are striped evenly across sockets, with
// the lowest tid on each socket acting as leader. sockets <= 1 models a
// single-socket machine.
func New(maxThreads, sockets int) *Pool {
	if maxThreads <= 0 {
		panic("lanepool: maxThreads must be positive")
	}
	if sockets <= 0 {
		sockets = 1
	}
	if sockets > maxThreads {
		sockets = maxThreads
	}
	p := &Pool{
		maxThreads: maxThreads,
		sockets:    sockets,
		lanes:      make([]*lane, maxThreads),
		idToTid:    make(map[uint64]int, maxThreads),
	}
	p.active.Store(int32(maxThreads))
	for i := 0; i < maxThreads; i++ {
		l := &lane{id: i, tasks: make(chan func(tid int)), done: make(chan struct{})}
		p.lanes[i] = l
		go p.run(l)
	}
	log.Info("lane pool started", logging.Fields{"max_threads": maxThreads, "sockets": sockets})
	return p
}

func (p *Pool) run(l *lane) {
	l.state.Store(int32(Idle))
	p.idMu.Lock()
	p.idToTid[goroutineID()] = l.id
	p.idMu.Unlock()
	for {
		select {
		case fn, ok := <-l.tasks:
			if !ok {
				l.state.Store(int32(Exiting))
				close(l.done)
				return
			}
			l.state.Store(int32(Running))
			fn(l.id)
			l.state.Store(int32(Idle))
		}
	}
}

// MaxThreads is the number of lanes the pool was constructed with.
func (p *Pool) MaxThreads() int { return p.maxThreads }

// MaxSockets is the number of NUMA sockets the pool models.
func (p *Pool) MaxSockets() int { return p.sockets }

// laneWidth returns how many tids share one socket under the even-stripe
// placement policy.
func (p *Pool) laneWidth() int {
	w := p.maxThreads / p.sockets
	if p.maxThreads%p.sockets != 0 {
		w++
	}
	return w
}

// Socket returns the NUMA socket tid belongs to.
func (p *Pool) Socket(tid int) int {
	w := p.laneWidth()
	s := tid / w
	if s >= p.sockets {
		s = p.sockets - 1
	}
	return s
}

// IsLeader reports whether tid is the lowest-numbered tid on its socket.
func (p *Pool) IsLeader(tid int) bool {
	return p.LeaderForSocket(p.Socket(tid)) == tid
}

// LeaderForSocket returns the lowest tid assigned to socket.
func (p *Pool) LeaderForSocket(socket int) int {
	return socket * p.laneWidth()
}

// CumulativeMaxSocket returns the highest socket index among tids
// 0..tid inclusive, used by callers sizing per-socket structures against
// only the sockets actually in play for a given active-thread count.
func (p *Pool) CumulativeMaxSocket(tid int) int {
	return p.Socket(tid)
}

// CurrentTID returns the calling lane's tid, or 0 (the master identity)
// if called from outside a lane.
func (p *Pool) CurrentTID() int {
	p.idMu.RLock()
	defer p.idMu.RUnlock()
	if tid, ok := p.idToTid[goroutineID()]; ok {
		return tid
	}
	return 0
}

// CurrentSocket is Socket(CurrentTID()).
func (p *Pool) CurrentSocket() int { return p.Socket(p.CurrentTID()) }

// ActiveThreads returns the current ActiveThreads setting, snapshotted by
// executors at loop entry.
func (p *Pool) ActiveThreads() int { return int(p.active.Load()) }

// SetActiveThreads updates ActiveThreads. Precondition (unenforceable at
// the type level, asserted defensively): not called from within a Run.
func (p *Pool) SetActiveThreads(n int) error {
	if n <= 0 || n > p.maxThreads {
		return fmt.Errorf("lanepool: active threads %d out of range (0, %d]", n, p.maxThreads)
	}
	if p.entered.Load() != 0 {
		return fmt.Errorf("lanepool: cannot change active threads while a loop is running")
	}
	p.active.Store(int32(n))
	return nil
}

// Run synchronously executes task on tids 0..n-1, blocking the caller
// until every invocation returns. Re-entrant calls from a lane already
// inside a Run are a fatal programming error.
func (p *Pool) Run(n int, task func(tid int)) {
	if n <= 0 || n > p.maxThreads {
		loomerr.Abort("loom/lanepool", fmt.Errorf("Run: n=%d out of range (0, %d]", n, p.maxThreads))
		return
	}
	if !p.entered.CompareAndSwap(0, 1) {
		loomerr.Abort("loom/lanepool", fmt.Errorf("Run: re-entrant call detected"))
		return
	}
	defer p.entered.Store(0)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		l := p.lanes[i]
		l.tasks <- func(tid int) {
			defer wg.Done()
			task(tid)
		}
	}
	wg.Wait()
}

// Shutdown broadcasts an exit sentinel to every lane and waits for all to
// acknowledge, driving each lane through Idle -> Exiting -> joined.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		for _, l := range p.lanes {
			close(l.tasks)
		}
		var g errgroup.Group
		for _, l := range p.lanes {
			l := l
			g.Go(func() error {
				<-l.done
				return nil
			})
		}
		_ = g.Wait()
		log.Info("lane pool shut down", logging.Fields{"max_threads": p.maxThreads})
	})
}

// State returns a lane's current lifecycle state.
func (p *Pool) State(tid int) State {
	return State(p.lanes[tid].state.Load())
}
