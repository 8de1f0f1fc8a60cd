package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorSumsAcrossLanes(t *testing.T) {
	a := NewAccumulator[int](4)
	a.Update(0, 3)
	a.Update(1, 4)
	a.Update(0, 2)
	a.Update(3, 1)
	assert.Equal(t, 10, a.Reduce())
}

func TestReduceMaxAcrossLanes(t *testing.T) {
	r := NewReduceMax[int](3)
	r.Update(0, 5)
	r.Update(1, 9)
	r.Update(2, 2)
	v, ok := r.Reduce()
	assert.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestReduceMaxEmpty(t *testing.T) {
	r := NewReduceMax[int](3)
	_, ok := r.Reduce()
	assert.False(t, ok)
}

func TestReduceMinAcrossLanes(t *testing.T) {
	r := NewReduceMin[int](3)
	r.Update(0, 5)
	r.Update(1, -9)
	r.Update(2, 2)
	v, ok := r.Reduce()
	assert.True(t, ok)
	assert.Equal(t, -9, v)
}

func TestReduceLogicalOr(t *testing.T) {
	r := NewReduceLogicalOr(4)
	assert.False(t, r.Reduce())
	r.Update(2)
	assert.True(t, r.Reduce())
}
