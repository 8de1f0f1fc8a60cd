package loom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-run/loom/pkg/config"
	"github.com/loom-run/loom/pkg/termination"
)

func testOptions() config.Options {
	o := config.Default()
	o.MaxThreads = 4
	o.DefaultActiveThreads = 4
	o.Sockets = 2
	return o
}

func TestNewAndShutdown(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, rt.ActiveThreads())
	require.NoError(t, rt.Shutdown())
}

func TestOnlyOneRuntimeAtATime(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Shutdown()

	_, err = New(testOptions())
	assert.Error(t, err)
}

func TestShutdownAllowsReconstruction(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown())

	rt2, err := New(testOptions())
	require.NoError(t, err)
	require.NoError(t, rt2.Shutdown())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	o := testOptions()
	o.MaxThreads = 0
	_, err := New(o)
	assert.Error(t, err)
}

func TestNewBarrierMatchesActiveThreads(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Shutdown()

	b := rt.NewBarrier()
	done := make(chan struct{}, rt.ActiveThreads())
	for i := 0; i < rt.ActiveThreads(); i++ {
		go func() {
			b.Wait()
			done <- struct{}{}
		}()
	}
	for i := 0; i < rt.ActiveThreads(); i++ {
		<-done
	}
}

func TestNewTerminationDetectorUsesConfiguredTopology(t *testing.T) {
	opts := testOptions()
	opts.TerminationTopology = config.TerminationTree
	rt, err := New(opts)
	require.NoError(t, err)
	defer rt.Shutdown()

	d := rt.NewTerminationDetector()
	for i := 0; i < rt.ActiveThreads(); i++ {
		d.ClearActive(i)
	}
	assert.True(t, d.Poll())
}

func TestTerminationTopologyTranslatesConfig(t *testing.T) {
	opts := testOptions()
	opts.TerminationTopology = config.TerminationTree
	opts.TerminationArity = 3
	rt, err := New(opts)
	require.NoError(t, err)
	defer rt.Shutdown()

	topology, arity := rt.TerminationTopology()
	assert.Equal(t, termination.Tree, topology)
	assert.Equal(t, 3, arity)
}

func TestShutdownIsIdempotent(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown())
	require.NoError(t, rt.Shutdown())
}
