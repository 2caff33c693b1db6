// Package provider defines the uniform retrieval contract every back-end
// implements. The façade adds no behavior beyond delegation: the hot path
// is a single interface call, and the closed, tagged dispatch over
// back-ends lives entirely in pkg/providerconfig's Config/Build, not in
// Provider itself.
package provider

import (
	"context"

	"github.com/lucasonchain/psyche/pkg/token"
)

// Provider is the uniform retrieval contract exposed by every back-end:
// local, HTTP, TCP, weighted, and dummy.
type Provider interface {
	// NumSequences returns the number of sequences this provider exposes,
	// fixed after construction.
	NumSequences() uint64
	// GetSamples returns the sequences named by id, in id's order.
	GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error)
}
