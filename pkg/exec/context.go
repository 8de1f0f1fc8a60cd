package exec

import (
	"github.com/loom-run/loom/pkg/alloc"
	"github.com/loom-run/loom/pkg/lockctx"
)

// Context is the per-iteration handle ForEach's operator receives: it
// carries the speculative lock context (when conflict detection is
// enabled), a push sink for new work, and an optional per-iteration bump
// allocator.
type Context[T any] struct {
	tid    int
	lock   *lockctx.Context // nil when conflict detection is disabled
	bump   *alloc.BumpHeap  // nil unless PerIterAlloc is set
	pushed []T
}

// Acquire locks l for the current iteration, participating in conflict
// detection. A no-op returning nil when conflict detection is disabled
// for this loop.
func (c *Context[T]) Acquire(l *lockctx.Lockable, flag lockctx.Flag) error {
	if c.lock == nil {
		return nil
	}
	return c.lock.Acquire(l, flag)
}

// Push queues item for processing later in this loop.
func (c *Context[T]) Push(item T) {
	c.pushed = append(c.pushed, item)
}

// PushRange queues every item in items for processing later in this
// loop, equivalent to calling Push once per item but in one batch.
func (c *Context[T]) PushRange(items []T) {
	c.pushed = append(c.pushed, items...)
}

// Alloc returns size bytes from this iteration's bump allocator. Panics
// if PerIterAlloc was not set for the loop.
func (c *Context[T]) Alloc(size int) ([]byte, error) {
	if c.bump == nil {
		panic("exec: Context.Alloc called without Options.PerIterAlloc")
	}
	return c.bump.Alloc(size)
}

// TID returns the calling lane's tid.
func (c *Context[T]) TID() int { return c.tid }
