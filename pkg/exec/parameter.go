package exec

import (
	"github.com/google/uuid"

	"github.com/loom-run/loom/pkg/stats"
)

// ParaMeterRound is one round's profiling row: how many items were
// available to run concurrently, how large the worklist was at the
// start of the round, and how many new items the round's processing
// produced (the "neighborhood" it expanded into).
type ParaMeterRound struct {
	RoundID          uuid.UUID
	Parallelism      int
	WorklistSize     int
	NeighborhoodSize int
}

// ParaMeter runs fn to quiescence in discrete rounds: every item present
// in the worklist at the start of a round is considered mutually
// independent and is executed within that round (their pushes land in
// the next round's worklist, never the current one), making the
// per-round item count a deterministic measure of available
// parallelism rather than a fast execution path. Every round is tagged
// with a UUID so repeated runs' CSV rows can be correlated without
// relying on wall-clock time.
func ParaMeter[T any](mgr *stats.Manager, loopname string, initial []T, fn func(item T, push func(T))) []ParaMeterRound {
	var rounds []ParaMeterRound
	current := append([]T(nil), initial...)

	for len(current) > 0 {
		round := ParaMeterRound{
			RoundID:      uuid.New(),
			Parallelism:  len(current),
			WorklistSize: len(current),
		}
		var next []T
		push := func(item T) { next = append(next, item) }
		for _, item := range current {
			fn(item, push)
		}
		round.NeighborhoodSize = len(next)
		rounds = append(rounds, round)

		if mgr != nil && loopname != "" {
			mgr.AddInt(0, loopname, "round_parallelism", int64(round.Parallelism), stats.Avg)
			mgr.AddInt(0, loopname, "round_neighborhood", int64(round.NeighborhoodSize), stats.Avg)
		}
		current = next
	}
	return rounds
}
