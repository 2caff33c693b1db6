package rangeset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lucasonchain/psyche/pkg/rangeset"
)

func TestGroupEqual(t *testing.T) {
	got := rangeset.GroupEqual([]int{0, 0, 1, 1, 1, 0})
	assert.Equal(t, []rangeset.Run{{Start: 0, End: 1}, {Start: 2, End: 4}, {Start: 5, End: 5}}, got)
}

func TestGroupConsecutive(t *testing.T) {
	got := rangeset.GroupConsecutive([]uint64{5, 6, 7, 10, 11, 20})
	assert.Equal(t, []rangeset.Run{{Start: 0, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 5}}, got)
}

func TestGroupByEmpty(t *testing.T) {
	got := rangeset.GroupBy(0, func(i, j int) bool { return true })
	assert.Nil(t, got)
}

func TestRunLen(t *testing.T) {
	assert.Equal(t, 3, rangeset.Run{Start: 2, End: 4}.Len())
}
