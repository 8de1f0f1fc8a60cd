// Package perthread gives every lane a private, stably-addressed slot of
// type T, plus a per-socket variant shared by all lanes on the same
// socket. Both are allocated once and never moved, so a pointer handed
// out by Get remains valid for the lifetime of the owning Storage.
package perthread

import (
	"sync"
)

// Owner is the subset of lanepool.Pool that Storage needs: a lane count,
// a socket mapping, and a way to ask "who am I right now". Declared
// locally (rather than importing lanepool) so perthread has no
// dependency on how tids are discovered.
type Owner interface {
	MaxThreads() int
	MaxSockets() int
	Socket(tid int) int
	CurrentTID() int
}

// Storage holds one T per lane, addressed by tid. The backing slice is
// allocated once at construction so element addresses never change.
type Storage[T any] struct {
	owner    Owner
	slots    []T
	poison   bool
	poisoned []bool
}

// NewStorage allocates a Storage with one zero-valued T per lane. If
// zero is non-nil, it is called once per lane to produce the initial
// value instead of using the zero value of T.
func NewStorage[T any](owner Owner, zero func(tid int) T) *Storage[T] {
	n := owner.MaxThreads()
	s := &Storage[T]{owner: owner, slots: make([]T, n)}
	if zero != nil {
		for i := 0; i < n; i++ {
			s.slots[i] = zero(i)
		}
	}
	return s
}

// EnableDebugPoison turns on debug-only tracking of freed-but-not-yet-
// reused slots: once a slot is released via Free, Get/GetLocal panic if
// called on it again before Put reinitializes it. Off by default so the
// fast path pays nothing; intended for debug builds chasing a
// use-after-free across Free/Put pairs.
func (s *Storage[T]) EnableDebugPoison() {
	s.poison = true
	if s.poisoned == nil {
		s.poisoned = make([]bool, len(s.slots))
	}
}

// Free marks tid's slot as released. With debug poisoning disabled this
// only resets the slot to T's zero value; with it enabled, any Get/
// GetLocal on tid before the next Put panics.
func (s *Storage[T]) Free(tid int) {
	var zero T
	s.slots[tid] = zero
	if s.poison {
		s.poisoned[tid] = true
	}
}

// Put reinitializes tid's slot with v, clearing any poison Free left
// behind.
func (s *Storage[T]) Put(tid int, v T) {
	s.slots[tid] = v
	if s.poison {
		s.poisoned[tid] = false
	}
}

// Get returns a pointer to the slot owned by tid. The pointer is stable:
// it remains valid until the Storage itself is discarded. Panics if
// debug poisoning is enabled and tid's slot was Free'd without a
// subsequent Put.
func (s *Storage[T]) Get(tid int) *T {
	if s.poison && s.poisoned[tid] {
		panic("perthread: use of freed slot before reuse")
	}
	return &s.slots[tid]
}

// GetLocal returns the slot for the calling lane, per Owner.CurrentTID.
func (s *Storage[T]) GetLocal() *T { return s.Get(s.owner.CurrentTID()) }

// Each calls fn once per lane slot, in tid order. Callers running inside
// a Run loop should prefer Get(tid) directly; Each is for setup/teardown
// and diagnostics run from outside a loop.
func (s *Storage[T]) Each(fn func(tid int, v *T)) {
	for i := range s.slots {
		fn(i, &s.slots[i])
	}
}

// SocketStorage holds one T per socket, addressed via the socket a tid
// belongs to. Writers must hold Lock for the socket they touch; readers
// needing a consistent snapshot should also take the lock, since sockets
// may be written concurrently by any lane on them.
type SocketStorage[T any] struct {
	owner Owner
	mu    []sync.Mutex
	slots []T
}

// NewSocketStorage allocates one T and one mutex per socket.
func NewSocketStorage[T any](owner Owner, zero func(socket int) T) *SocketStorage[T] {
	n := owner.MaxSockets()
	s := &SocketStorage[T]{owner: owner, mu: make([]sync.Mutex, n), slots: make([]T, n)}
	if zero != nil {
		for i := 0; i < n; i++ {
			s.slots[i] = zero(i)
		}
	}
	return s
}

// WithSocket runs fn holding the lock for the given tid's socket, passing
// a pointer to that socket's slot.
func (s *SocketStorage[T]) WithSocket(tid int, fn func(v *T)) {
	sock := s.owner.Socket(tid)
	s.mu[sock].Lock()
	defer s.mu[sock].Unlock()
	fn(&s.slots[sock])
}

// WithCurrentSocket is WithSocket for the calling lane's own socket.
func (s *SocketStorage[T]) WithCurrentSocket(fn func(v *T)) {
	s.WithSocket(s.owner.CurrentTID(), fn)
}

// Raw returns an unsynchronized pointer to socket's slot. Safe only when
// the caller has independently established exclusive access (e.g. during
// single-threaded setup before a Run begins).
func (s *SocketStorage[T]) Raw(socket int) *T { return &s.slots[socket] }
