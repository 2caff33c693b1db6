package weighted_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasonchain/psyche/pkg/dummy"
	"github.com/lucasonchain/psyche/pkg/token"
	"github.com/lucasonchain/psyche/pkg/weighted"
)

// TestS4WeightedProportions checks two providers weighted [0.25, 0.75]
// over N=1000 produce exact counts [250, 750].
// The sub-providers tag each sequence with their own index so the test can
// recover dataset_index from GetSamples output alone.
func TestS4WeightedProportions(t *testing.T) {
	first := fingerprintProvider{tag: 0, length: 100}
	second := fingerprintProvider{tag: 1, length: 100}

	entries, err := weighted.ExplicitlyWeighted([]weighted.Entry{
		{Provider: first, Weight: 0.25},
		{Provider: second, Weight: 0.75},
	})
	require.NoError(t, err)

	b, err := weighted.New(entries, 1000, token.DontShuffle)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), b.NumSequences())

	samples, err := b.GetSamples(context.Background(), token.NewBatchId(0, 999))
	require.NoError(t, err)

	var counts [2]int
	for _, s := range samples {
		counts[s[0]]++
	}
	require.Equal(t, [2]int{250, 750}, counts)
}

// TestS5WeightedTieBreak checks equal weights over N=4 resolve ties in
// favor of the smaller index, yielding
// dataset_index = [0,1,0,1]. Since dataset_index is not directly exported,
// this is verified by constructing two fingerprint providers whose
// GetSamples output encodes which provider served each position.
func TestS5WeightedTieBreak(t *testing.T) {
	first := fingerprintProvider{tag: 0, length: 10}
	second := fingerprintProvider{tag: 1, length: 10}

	entries, err := weighted.ExplicitlyWeighted([]weighted.Entry{
		{Provider: first, Weight: 0.5},
		{Provider: second, Weight: 0.5},
	})
	require.NoError(t, err)

	b, err := weighted.New(entries, 4, token.DontShuffle)
	require.NoError(t, err)

	samples, err := b.GetSamples(context.Background(), token.NewBatchId(0, 3))
	require.NoError(t, err)

	got := make([]token.Token, len(samples))
	for i, s := range samples {
		got[i] = s[0]
	}
	require.Equal(t, []token.Token{0, 1, 0, 1}, got)
}

// fingerprintProvider returns sequences whose sole token is its tag, so
// tests can observe which sub-provider served each position without
// inspecting unexported composer state.
type fingerprintProvider struct {
	tag    token.Token
	length uint64
}

func (p fingerprintProvider) NumSequences() uint64 { return p.length }

func (p fingerprintProvider) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	out := make([][]token.Token, id.Width())
	for i := range out {
		out[i] = []token.Token{p.tag}
	}
	return out, nil
}

func TestByLengthWeighting(t *testing.T) {
	entries, err := weighted.ByLength(dummy.New(1, 25), dummy.New(1, 75))
	require.NoError(t, err)
	require.InDelta(t, 0.25, entries[0].Weight, 1e-9)
	require.InDelta(t, 0.75, entries[1].Weight, 1e-9)
}

func TestExplicitlyWeightedRejectsNonPositive(t *testing.T) {
	_, err := weighted.ExplicitlyWeighted([]weighted.Entry{{Provider: dummy.New(1, 10), Weight: 0}})
	require.Error(t, err)
}

func TestCoalescingBoundsSubCalls(t *testing.T) {
	counting := &countingProvider{length: 1000}
	entries, err := weighted.ExplicitlyWeighted([]weighted.Entry{{Provider: counting, Weight: 1}})
	require.NoError(t, err)

	b, err := weighted.New(entries, 1000, token.DontShuffle)
	require.NoError(t, err)

	_, err = b.GetSamples(context.Background(), token.NewBatchId(0, 999))
	require.NoError(t, err)
	require.Equal(t, 1, counting.calls)
}

type countingProvider struct {
	length uint64
	calls  int
}

func (p *countingProvider) NumSequences() uint64 { return p.length }

func (p *countingProvider) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	p.calls++
	out := make([][]token.Token, id.Width())
	for i := range out {
		out[i] = []token.Token{0}
	}
	return out, nil
}
