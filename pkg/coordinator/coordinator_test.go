package coordinator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lucasonchain/psyche/pkg/coordinator"
	"github.com/lucasonchain/psyche/pkg/tcp/identity"
	"github.com/lucasonchain/psyche/pkg/token"
)

func TestAdmitsRequiresClientInRound(t *testing.T) {
	v := coordinator.NewView("run-1", nil, map[identity.Identity][]token.BatchId{
		"x": {token.NewBatchId(0, 9)},
	})
	assert.False(t, v.Admits("x", token.NewBatchId(0, 9)), "x has an assignment but is not in the round's client set")
}

func TestAdmitsRequiresBatchSubsetOfAssignment(t *testing.T) {
	v := coordinator.NewView("run-1", []identity.Identity{"x"}, map[identity.Identity][]token.BatchId{
		"x": {token.NewBatchId(0, 9)},
	})
	assert.True(t, v.Admits("x", token.NewBatchId(0, 9)))
	assert.True(t, v.Admits("x", token.NewBatchId(2, 5)))
	assert.False(t, v.Admits("x", token.NewBatchId(10, 19)))
	assert.False(t, v.Admits("x", token.NewBatchId(5, 15)), "partially overlapping batch must not be admitted")
	assert.False(t, v.Admits("y", token.NewBatchId(0, 9)))
}

func TestHolderPublishSwapsAtomically(t *testing.T) {
	v1 := coordinator.NewView("run-1", []identity.Identity{"x"}, map[identity.Identity][]token.BatchId{
		"x": {token.NewBatchId(0, 9)},
	})
	h := coordinator.NewHolder(v1)
	assert.Same(t, v1, h.Current())

	v2 := coordinator.NewView("run-1", []identity.Identity{"y"}, nil)
	h.Publish(v2)
	assert.Same(t, v2, h.Current())
}
