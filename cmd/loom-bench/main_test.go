package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loom-run/loom/pkg/config"
	"github.com/loom-run/loom/pkg/loom"
)

func runScenario(t *testing.T, name string) {
	t.Helper()
	opts := config.Default()
	opts.MaxThreads = 4
	opts.DefaultActiveThreads = 4

	rt, err := loom.New(opts)
	require.NoError(t, err)
	defer rt.Shutdown()

	for _, s := range scenarios {
		if s.name == name {
			require.NoError(t, s.run(rt))
			return
		}
	}
	t.Fatalf("no scenario named %q", name)
}

func TestDoAllIncrementScenario(t *testing.T) { runScenario(t, "do_all_increment") }
func TestForEachCounterScenario(t *testing.T) { runScenario(t, "for_each_counter") }
func TestConflictRetryScenario(t *testing.T)  { runScenario(t, "conflict_retry") }
func TestBarrierLivenessScenario(t *testing.T) { runScenario(t, "barrier_liveness") }
func TestDeltaStepSSSPScenario(t *testing.T)  { runScenario(t, "delta_step_sssp") }
