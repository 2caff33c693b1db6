// Package coordinator models the read-only round/assignment snapshot the
// TCP back-end's server consults on every request. The federated-run
// coordinator that produces snapshots is an external collaborator; this
// package only defines the view contract and a process-local holder that
// atomically swaps snapshots between rounds.
package coordinator

import (
	"sync/atomic"

	"github.com/lucasonchain/psyche/pkg/tcp/identity"
	"github.com/lucasonchain/psyche/pkg/token"
)

// View is an immutable snapshot of one round's admission state. Once
// constructed, a View is never mutated; a new round produces a new View.
type View struct {
	RunID               string
	CurrentRoundClients map[identity.Identity]struct{}
	DataAssignments     map[identity.Identity][]token.BatchId
}

// NewView constructs a View from the given run id, client set, and
// per-identity assignment lists.
func NewView(runID string, clients []identity.Identity, assignments map[identity.Identity][]token.BatchId) *View {
	set := make(map[identity.Identity]struct{}, len(clients))
	for _, c := range clients {
		set[c] = struct{}{}
	}
	return &View{RunID: runID, CurrentRoundClients: set, DataAssignments: assignments}
}

// Admits reports whether id is part of the current round and whether batch
// is a subset of one of its assigned batches.
func (v *View) Admits(id identity.Identity, batch token.BatchId) bool {
	if _, ok := v.CurrentRoundClients[id]; !ok {
		return false
	}
	for _, assigned := range v.DataAssignments[id] {
		if batch.Contains(assigned) {
			return true
		}
	}
	return false
}

// Holder atomically publishes and serves the current View, so the server's
// per-connection goroutines never observe a torn read across a round
// transition.
type Holder struct {
	current atomic.Pointer[View]
}

// NewHolder returns a Holder seeded with an initial View.
func NewHolder(initial *View) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Current returns the most recently published View.
func (h *Holder) Current() *View {
	return h.current.Load()
}

// Publish atomically swaps in a new View for the next round.
func (h *Holder) Publish(v *View) {
	h.current.Store(v)
}
