package termination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingDetectorTerminatesWhenAllIdle(t *testing.T) {
	d := NewDetector(4, Ring, 0)
	assert.True(t, d.Poll())
}

func TestRingDetectorBlocksOnActiveWorker(t *testing.T) {
	d := NewDetector(4, Ring, 0)
	d.MarkActive(2)
	assert.False(t, d.Poll())
	d.Reset()
	assert.True(t, d.Poll())
}

func TestTreeDetectorTerminatesWhenAllIdle(t *testing.T) {
	d := NewDetector(7, Tree, 2)
	assert.True(t, d.Poll())
}

func TestTreeDetectorBlocksOnLeafActivity(t *testing.T) {
	d := NewDetector(7, Tree, 2)
	d.MarkActive(6)
	assert.False(t, d.Poll())
}

func TestTreeDetectorBlocksOnRootActivity(t *testing.T) {
	d := NewDetector(7, Tree, 2)
	d.MarkActive(0)
	assert.False(t, d.Poll())
}

func TestDoneCachesVerdict(t *testing.T) {
	d := NewDetector(2, Ring, 0)
	assert.False(t, d.Done())
	assert.True(t, d.Poll())
	assert.True(t, d.Done())
	d.MarkActive(0) // does not retroactively un-terminate a cached Poll
	assert.True(t, d.Done())
}
