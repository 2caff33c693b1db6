package token

// Shuffle selects whether and how a back-end permutes its pointer vector at
// construction time. The zero value is DontShuffle.
type Shuffle struct {
	seeded bool
	seed   uint64
}

// DontShuffle leaves the pointer vector in file-then-offset order.
var DontShuffle = Shuffle{}

// Seeded returns a Shuffle that applies a Fisher-Yates permutation driven by
// pkg/prng keyed on seed. The same seed always yields the same permutation
// for a given vector length.
func Seeded(seed uint64) Shuffle {
	return Shuffle{seeded: true, seed: seed}
}

// IsSeeded reports whether s requests a shuffle, and if so, the seed to
// drive it with.
func (s Shuffle) IsSeeded() (seed uint64, ok bool) {
	return s.seed, s.seeded
}
