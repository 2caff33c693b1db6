// Package rangeset implements the run-grouping primitives shared by the
// HTTP back-end's request coalescing (pkg/httpds) and the weighted
// composer's dispatch coalescing (pkg/weighted): both need to turn a
// sequence of per-position values into maximal runs of adjacent positions
// that share a property, so that downstream code issues one sub-operation
// per run instead of one per position.
package rangeset

// Run is a maximal contiguous span [Start, End] (inclusive indices into the
// original slice) satisfying some adjacency predicate.
type Run struct {
	Start, End int
}

// Len returns the number of positions spanned by the run.
func (r Run) Len() int { return r.End - r.Start + 1 }

// GroupBy partitions [0, n) into maximal runs where adjacent positions i and
// i+1 belong to the same run iff same(i, i+1) is true. same is only ever
// queried on adjacent positions, in increasing order.
func GroupBy(n int, same func(i, j int) bool) []Run {
	if n == 0 {
		return nil
	}
	runs := make([]Run, 0, n)
	start := 0
	for i := 1; i < n; i++ {
		if !same(i-1, i) {
			runs = append(runs, Run{Start: start, End: i - 1})
			start = i
		}
	}
	runs = append(runs, Run{Start: start, End: n - 1})
	return runs
}

// GroupEqual partitions values into maximal runs of equal adjacent values.
// Used to find runs of the weighted composer's dataset_index that name the
// same sub-provider.
func GroupEqual[T comparable](values []T) []Run {
	return GroupBy(len(values), func(i, j int) bool { return values[i] == values[j] })
}

// GroupConsecutive partitions values into maximal runs where each value is
// exactly one greater than its predecessor. Used for the weighted
// composer's dataset_sample_index within an already-same-provider run (the
// HTTP back-end groups byte offsets with GroupBy and a sequence-width step
// instead).
func GroupConsecutive(values []uint64) []Run {
	return GroupBy(len(values), func(i, j int) bool { return values[j] == values[i]+1 })
}
