// Package dummy implements the zero-fill back-end used for latency
// isolation in tests: every sequence is all zeros, and num_sequences is a
// configured cap rather than anything backed by real data.
package dummy

import (
	"context"
	"fmt"

	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/token"
)

// Backend returns a fixed-length sequence of zero tokens for every request.
type Backend struct {
	seqLen int
	cap    uint64
}

// New returns a Backend whose sequences have seqLen+1 tokens (matching
// every other back-end's context+target convention) and whose
// NumSequences is the given cap.
func New(seqLen int, cap uint64) *Backend {
	return &Backend{seqLen: seqLen, cap: cap}
}

// NumSequences returns the configured cap.
func (b *Backend) NumSequences() uint64 {
	return b.cap
}

// GetSamples returns id.Width() all-zero sequences of seqLen+1 tokens.
func (b *Backend) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.End >= b.cap {
		return nil, psycheerr.New(psycheerr.OutOfRange, fmt.Sprintf(
			"batch [%d,%d] exceeds num_sequences %d", id.Start, id.End, b.cap))
	}
	out := make([][]token.Token, id.Width())
	for i := range out {
		out[i] = make([]token.Token, b.seqLen+1)
	}
	return out, nil
}
