package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagePoolReusesPages(t *testing.T) {
	pool := NewPagePool()
	p1, err := pool.Get()
	require.NoError(t, err)
	require.Len(t, p1, PageSize)
	pool.Put(p1)

	p2, err := pool.Get()
	require.NoError(t, err)
	assert.Len(t, p2, PageSize)
	pool.Put(p2)

	require.NoError(t, pool.Release())
}

func TestFixedSizeHeapCarvesBlocks(t *testing.T) {
	pool := NewPagePool()
	t.Cleanup(func() { _ = pool.Release() })
	h := NewFixedSizeHeap(pool, 64)

	b1, err := h.Alloc()
	require.NoError(t, err)
	b2, err := h.Alloc()
	require.NoError(t, err)
	assert.Len(t, b1, 64)
	assert.Len(t, b2, 64)

	h.Free(b1)
	b3, err := h.Alloc()
	require.NoError(t, err)
	assert.Len(t, b3, 64)
}

func TestFixedSizeHeapRejectsNonDivisor(t *testing.T) {
	pool := NewPagePool()
	t.Cleanup(func() { _ = pool.Release() })
	assert.Panics(t, func() { NewFixedSizeHeap(pool, 3) })
}

func TestPow2HeapRoundsUp(t *testing.T) {
	pool := NewPagePool()
	t.Cleanup(func() { _ = pool.Release() })
	h := NewPow2Heap(pool)

	b, err := h.Alloc(10)
	require.NoError(t, err)
	assert.Len(t, b, 10)
	h.Free(b, 10)
}

func TestBumpHeapAllocAndReset(t *testing.T) {
	pool := NewPagePool()
	t.Cleanup(func() { _ = pool.Release() })
	h := NewBumpHeap(pool)

	b1, err := h.Alloc(128)
	require.NoError(t, err)
	b2, err := h.Alloc(128)
	require.NoError(t, err)
	assert.NotSame(t, &b1[0], &b2[0])

	h.Reset()
	b3, err := h.Alloc(128)
	require.NoError(t, err)
	assert.Len(t, b3, 128)
}

func TestBumpHeapRejectsOversizeAlloc(t *testing.T) {
	pool := NewPagePool()
	t.Cleanup(func() { _ = pool.Release() })
	h := NewBumpHeap(pool)
	_, err := h.Alloc(PageSize + 1)
	assert.Error(t, err)
}
