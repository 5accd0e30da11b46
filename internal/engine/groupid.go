package engine

import (
	"math/rand"

	"github.com/google/uuid"
)

// newGroupIDGenerator returns a function producing "dca-"+uuid strings drawn
// from a PRNG seeded by seed, so two runs of the same RunSpec produce
// identical group ids (spec.md §4.5's deterministic, single-threaded run
// requirement extends to the ids it hands out).
func newGroupIDGenerator(seed int64) func() string {
	rng := rand.New(rand.NewSource(seed))
	return func() string {
		var b [16]byte
		_, _ = rng.Read(b[:])
		id, err := uuid.FromBytes(b[:])
		if err != nil {
			// uuid.FromBytes only fails on wrong-length input; b is fixed at 16.
			panic(err)
		}
		return "dca-" + id.String()
	}
}
