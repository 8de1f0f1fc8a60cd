package lanepool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInvokesEveryTid(t *testing.T) {
	p := New(4, 1)
	defer p.Shutdown()

	seen := make([]int32, 4)
	p.Run(4, func(tid int) {
		atomic.StoreInt32(&seen[tid], 1)
	})
	for tid, hit := range seen {
		assert.EqualValues(t, 1, hit, "tid %d was not invoked", tid)
	}
}

func TestRunFewerThanMax(t *testing.T) {
	p := New(4, 1)
	defer p.Shutdown()

	var count int32
	p.Run(2, func(tid int) {
		require.Less(t, tid, 2)
		atomic.AddInt32(&count, 1)
	})
	assert.EqualValues(t, 2, count)
}

func TestCurrentTIDInsideLane(t *testing.T) {
	p := New(4, 1)
	defer p.Shutdown()

	reported := make([]int, 4)
	p.Run(4, func(tid int) {
		reported[tid] = p.CurrentTID()
	})
	for tid, got := range reported {
		assert.Equal(t, tid, got)
	}
}

func TestCurrentTIDOutsideLaneIsZero(t *testing.T) {
	p := New(2, 1)
	defer p.Shutdown()
	assert.Equal(t, 0, p.CurrentTID())
}

func TestSocketPlacementAndLeaders(t *testing.T) {
	p := New(8, 2)
	defer p.Shutdown()

	assert.Equal(t, 2, p.MaxSockets())
	assert.Equal(t, 0, p.Socket(0))
	assert.Equal(t, 0, p.Socket(3))
	assert.Equal(t, 1, p.Socket(4))
	assert.Equal(t, 1, p.Socket(7))

	assert.True(t, p.IsLeader(0))
	assert.True(t, p.IsLeader(4))
	assert.False(t, p.IsLeader(1))
	assert.Equal(t, 0, p.LeaderForSocket(0))
	assert.Equal(t, 4, p.LeaderForSocket(1))
}

func TestSingleSocketDefault(t *testing.T) {
	p := New(4, 0)
	defer p.Shutdown()
	assert.Equal(t, 1, p.MaxSockets())
	for tid := 0; tid < 4; tid++ {
		assert.Equal(t, 0, p.Socket(tid))
	}
}

func TestReentrantRunIsFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess-equivalent fatal exit path; skipped under -short")
	}
	t.Skip("Run aborts the process on re-entrancy, which this test process cannot observe and survive")
}

func TestSetActiveThreadsRejectsOutOfRange(t *testing.T) {
	p := New(4, 1)
	defer p.Shutdown()
	assert.Error(t, p.SetActiveThreads(0))
	assert.Error(t, p.SetActiveThreads(5))
	assert.NoError(t, p.SetActiveThreads(2))
	assert.Equal(t, 2, p.ActiveThreads())
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2, 1)
	p.Shutdown()
	p.Shutdown()
}
