// Package weighted implements the composite back-end that presents N
// sub-providers of the same retrieval contract as a single virtual
// provider whose empirical draw proportions converge to requested weights
// for any prefix length, using a deterministic error-balancing interleave
// (no randomness beyond the optional joint shuffle).
package weighted

import (
	"context"
	"fmt"

	"github.com/lucasonchain/psyche/pkg/prng"
	"github.com/lucasonchain/psyche/pkg/provider"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/rangeset"
	"github.com/lucasonchain/psyche/pkg/token"
)

// Entry pairs a sub-provider with its un-normalized weight.
type Entry struct {
	Provider provider.Provider
	Weight   float64
}

// ExplicitlyWeighted normalizes the given entries' weights to sum to one
// and returns them unchanged otherwise. It fails with ConfigError if
// entries is empty or any weight is <= 0.
func ExplicitlyWeighted(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, "weighted: no sub-providers given")
	}
	var sum float64
	for i, e := range entries {
		if e.Weight <= 0 {
			return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("weighted: entry %d has non-positive weight %v", i, e.Weight))
		}
		sum += e.Weight
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Provider: e.Provider, Weight: e.Weight / sum}
	}
	return out, nil
}

// ByLength weights each provider proportionally to its own NumSequences.
func ByLength(providers ...provider.Provider) ([]Entry, error) {
	entries := make([]Entry, len(providers))
	for i, p := range providers {
		entries[i] = Entry{Provider: p, Weight: float64(p.NumSequences())}
	}
	return ExplicitlyWeighted(entries)
}

// Backend is the weighted composite provider.
type Backend struct {
	providers          []provider.Provider
	virtualLength      uint64
	datasetIndex       []int
	datasetSampleIndex []uint64
}

// New builds a Backend of virtual length n from entries (already
// normalized, e.g. via ExplicitlyWeighted or ByLength), applying the
// deterministic error-balancing interleave and an optional joint shuffle.
func New(entries []Entry, n uint64, shuffle token.Shuffle) (*Backend, error) {
	if len(entries) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, "weighted: no sub-providers given")
	}
	providers := make([]provider.Provider, len(entries))
	weights := make([]float64, len(entries))
	for i, e := range entries {
		providers[i] = e.Provider
		weights[i] = e.Weight
	}

	datasetIndex, datasetSampleIndex := interleave(weights, providers, n)

	if seed, ok := shuffle.IsSeeded(); ok {
		prng.New(seed).Shuffle(int(n), func(i, j int) {
			datasetIndex[i], datasetIndex[j] = datasetIndex[j], datasetIndex[i]
			datasetSampleIndex[i], datasetSampleIndex[j] = datasetSampleIndex[j], datasetSampleIndex[i]
		})
	}

	return &Backend{
		providers:          providers,
		virtualLength:      n,
		datasetIndex:       datasetIndex,
		datasetSampleIndex: datasetSampleIndex,
	}, nil
}

// interleave runs an error-balancing loop: at step k, pick the
// sub-provider i maximizing w[i]*(k+1) - counts[i], breaking ties by
// smaller i, and wrap its local index modulo its own length.
func interleave(weights []float64, providers []provider.Provider, n uint64) ([]int, []uint64) {
	counts := make([]float64, len(weights))
	datasetIndex := make([]int, n)
	datasetSampleIndex := make([]uint64, n)
	for k := uint64(0); k < n; k++ {
		best := 0
		bestScore := weights[0]*float64(k+1) - counts[0]
		for i := 1; i < len(weights); i++ {
			score := weights[i]*float64(k+1) - counts[i]
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		datasetIndex[k] = best
		length := providers[best].NumSequences()
		if length == 0 {
			datasetSampleIndex[k] = 0
		} else {
			datasetSampleIndex[k] = uint64(counts[best]) % length
		}
		counts[best]++
	}
	return datasetIndex, datasetSampleIndex
}

// NumSequences returns the configured virtual length.
func (b *Backend) NumSequences() uint64 {
	return b.virtualLength
}

// GetSamples resolves id against the interleave vectors, groups maximal
// runs of the same sub-provider, further groups each run's local indices
// into maximal contiguous integer runs, and issues one GetSamples call per
// such run, merging results back into id's original order. This issues at
// most id.Width() sub-calls. A same-source run whose local indices are
// consecutive costs one sub-call; where its local indices wrap around the
// sub-provider's length or have been reordered by the shuffle, it costs
// one sub-call per contiguous piece.
func (b *Backend) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.End >= b.virtualLength {
		return nil, psycheerr.New(psycheerr.OutOfRange, fmt.Sprintf(
			"batch [%d,%d] exceeds virtual length %d", id.Start, id.End, b.virtualLength))
	}

	width := int(id.Width())
	providerIdx := make([]int, width)
	sampleIdx := make([]uint64, width)
	for i := 0; i < width; i++ {
		providerIdx[i] = b.datasetIndex[id.Start+uint64(i)]
		sampleIdx[i] = b.datasetSampleIndex[id.Start+uint64(i)]
	}

	out := make([][]token.Token, width)
	providerRuns := rangeset.GroupEqual(providerIdx)
	for _, pr := range providerRuns {
		sub := sampleIdx[pr.Start : pr.End+1]
		for _, run := range rangeset.GroupConsecutive(sub) {
			lo := sub[run.Start]
			hi := sub[run.End]
			seqs, err := b.providers[providerIdx[pr.Start]].GetSamples(ctx, token.NewBatchId(lo, hi))
			if err != nil {
				return nil, err
			}
			for i, seq := range seqs {
				out[pr.Start+run.Start+i] = seq
			}
		}
	}
	return out, nil
}
