package perthread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct {
	threads, sockets int
	current          int
}

func (f *fakeOwner) MaxThreads() int    { return f.threads }
func (f *fakeOwner) MaxSockets() int    { return f.sockets }
func (f *fakeOwner) Socket(tid int) int { return tid % f.sockets }
func (f *fakeOwner) CurrentTID() int    { return f.current }

func TestStorageAddressesAreStable(t *testing.T) {
	owner := &fakeOwner{threads: 4, sockets: 1}
	s := NewStorage[int](owner, nil)

	p0 := s.Get(0)
	*p0 = 42
	p0again := s.Get(0)
	assert.Equal(t, 42, *p0again)
	require.Same(t, p0, p0again)
}

func TestStorageZeroFunc(t *testing.T) {
	owner := &fakeOwner{threads: 3, sockets: 1}
	s := NewStorage[int](owner, func(tid int) int { return tid * 10 })
	assert.Equal(t, 0, *s.Get(0))
	assert.Equal(t, 10, *s.Get(1))
	assert.Equal(t, 20, *s.Get(2))
}

func TestStorageEachVisitsAll(t *testing.T) {
	owner := &fakeOwner{threads: 4, sockets: 1}
	s := NewStorage[int](owner, nil)
	seen := map[int]bool{}
	s.Each(func(tid int, v *int) {
		*v = tid
		seen[tid] = true
	})
	assert.Len(t, seen, 4)
}

func TestGetLocalUsesCurrentTID(t *testing.T) {
	owner := &fakeOwner{threads: 4, sockets: 1, current: 2}
	s := NewStorage[string](owner, nil)
	*s.GetLocal() = "hi"
	assert.Equal(t, "hi", *s.Get(2))
}

func TestDebugPoisonCatchesUseAfterFree(t *testing.T) {
	owner := &fakeOwner{threads: 2, sockets: 1}
	s := NewStorage[int](owner, nil)
	s.EnableDebugPoison()

	*s.Get(0) = 7
	s.Free(0)
	assert.Panics(t, func() { s.Get(0) })

	s.Put(0, 9)
	assert.Equal(t, 9, *s.Get(0))
}

func TestFreeWithoutPoisonJustResets(t *testing.T) {
	owner := &fakeOwner{threads: 2, sockets: 1}
	s := NewStorage[int](owner, nil)
	*s.Get(0) = 7
	s.Free(0)
	assert.Equal(t, 0, *s.Get(0)) // no poisoning enabled: Get still works
}

func TestSocketStorageIsolatesBySocket(t *testing.T) {
	owner := &fakeOwner{threads: 4, sockets: 2}
	s := NewSocketStorage[int](owner, nil)

	s.WithSocket(0, func(v *int) { *v += 1 })
	s.WithSocket(2, func(v *int) { *v += 1 }) // same socket as tid 0
	s.WithSocket(1, func(v *int) { *v += 100 })

	assert.Equal(t, 2, *s.Raw(0))
	assert.Equal(t, 100, *s.Raw(1))
}
