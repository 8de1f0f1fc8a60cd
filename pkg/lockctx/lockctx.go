// Package lockctx implements speculative conflict detection for ForEach
// loop bodies: an iteration acquires a tagged, intrusive lock on every
// Lockable it touches, and either commits them all atomically at the end
// of the iteration or, on conflict with a concurrently-running iteration,
// releases everything it holds and reports a Conflict error so the
// executor can retry the work item.
package lockctx

import (
	"sync/atomic"

	"github.com/loom-run/loom/pkg/loomerr"
)

// Flag records how a Context intends to use a Lockable it has acquired.
type Flag int

const (
	// Unprotected accesses skip conflict detection entirely; used for
	// data the caller has proven is not concurrently touched.
	Unprotected Flag = iota
	// Previous marks a re-acquisition of a lock this context already
	// held as of a prior push, used by iteration-order-sensitive clients
	// that need to distinguish fresh acquires from repeats.
	Previous
	// Read marks a lock acquired for a read that still participates in
	// conflict detection against concurrent writers.
	Read
	// Write marks a lock acquired for exclusive mutation.
	Write
)

// Lockable is the embeddable owner-pointer a contended object exposes to
// participate in speculative conflict detection. Embed it by value in
// the guarded type and take its address when calling Context.Acquire.
type Lockable struct {
	owner atomic.Pointer[Context]
	next  *Lockable // intrusive link in the owning Context's held list
}

// OwnedBy reports whether ctx currently owns l.
func (l *Lockable) OwnedBy(ctx *Context) bool {
	return l.owner.Load() == ctx
}

// Context is a single loop iteration's speculative-execution handle: the
// set of Lockables it has acquired, pending release either by commit (on
// success) or cancel (on conflict).
type Context struct {
	held *Lockable // head of the intrusive held-list
}

// New returns a fresh, empty Context. Executors construct one per
// iteration attempt and discard it after commit or cancel.
func New() *Context {
	return &Context{}
}

// Acquire attempts to take ownership of l for ctx. Unprotected and
// Previous accesses always succeed without recording l or participating
// in conflict detection: Previous asserts the caller already knows it
// holds l from a prior push in this same iteration and is only
// re-asserting the relationship, not acquiring it fresh. Read and Write
// record l in ctx's held list on success. Acquire returns a Conflict
// error, recovered by the executor as a retry signal, if l is already
// owned by a different context.
func (ctx *Context) Acquire(l *Lockable, flag Flag) error {
	if flag == Unprotected || flag == Previous {
		return nil
	}
	if !l.owner.CompareAndSwap(nil, ctx) {
		if l.owner.Load() == ctx {
			return nil // already held by this same context
		}
		return loomerr.New(loomerr.Conflict, "lockctx", errConflict{l})
	}
	l.next = ctx.held
	ctx.held = l
	return nil
}

// Commit releases every Lockable ctx holds, making the iteration's
// effects permanent and the locks available to the next iteration that
// touches them.
func (ctx *Context) Commit() {
	ctx.releaseAll()
}

// Cancel releases every Lockable ctx holds without any further action.
// Cancel and Commit are currently identical at the lock layer: the
// distinction exists for callers that attach undo logic to cancellation
// (e.g. restoring a property map write) above this package.
func (ctx *Context) Cancel() {
	ctx.releaseAll()
}

func (ctx *Context) releaseAll() {
	for l := ctx.held; l != nil; {
		next := l.next
		l.owner.Store(nil)
		l.next = nil
		l = next
	}
	ctx.held = nil
}

// errConflict is the sentinel payload wrapped by the Conflict error
// Acquire returns; it carries the contended Lockable for diagnostics.
type errConflict struct{ l *Lockable }

func (e errConflict) Error() string { return "lockctx: lock already held by another context" }
