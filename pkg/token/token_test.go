package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/token"
)

func TestSizeBytes(t *testing.T) {
	assert.Equal(t, int64(2), token.TwoBytes.Bytes())
	assert.Equal(t, int64(4), token.FourBytes.Bytes())
	assert.Equal(t, int64(6), token.TwoBytes.SequenceBytes(2))
	assert.Equal(t, int64(12), token.FourBytes.SequenceBytes(2))
}

// TestDecodeRoundTrip checks a synthetic u16 LE file decodes to the exact
// integers widened to i32, in file order.
func TestDecodeRoundTrip(t *testing.T) {
	buf := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}
	got := token.TwoBytes.Decode(buf)
	require.Equal(t, []token.Token{1, 2, 3, 4, 5, 6}, got)
}

func TestDecodeFourBytes(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF} // max uint32; the decoder keeps its 32-bit pattern.
	got := token.FourBytes.Decode(buf)
	require.Len(t, got, 1)
	assert.Equal(t, token.Token(-1), got[0]) // binary pattern reinterpreted as signed i32.
}

func TestBatchIdWidthAndContains(t *testing.T) {
	b := token.NewBatchId(3, 7)
	assert.Equal(t, uint64(5), b.Width())
	assert.True(t, b.Contains(token.NewBatchId(0, 10)))
	assert.False(t, b.Contains(token.NewBatchId(0, 5)))

	single := token.SingleBatchId(9)
	assert.Equal(t, uint64(1), single.Width())
}

func TestBuildPointersTiling(t *testing.T) {
	// Two files: first holds exactly 2 sequences, second holds 1.
	files := []token.FileInfo{
		{Locator: "a.bin", Size: 12}, // seqLen=2 => 3 tokens/seq * 2 bytes = 6 bytes/seq.
		{Locator: "b.bin", Size: 6},
	}
	ptrs, err := token.BuildPointers(files, 2, token.TwoBytes)
	require.NoError(t, err)
	require.Equal(t, []token.SequencePointer{
		{FileIndex: 0, ByteOffset: 0},
		{FileIndex: 0, ByteOffset: 6},
		{FileIndex: 1, ByteOffset: 0},
	}, ptrs)
}

// TestBuildPointersAlignment checks a file smaller than one sequence
// fails with AlignmentError, never silently drops the trailing bytes.
func TestBuildPointersAlignment(t *testing.T) {
	files := []token.FileInfo{{Locator: "short.bin", Size: 4}}
	_, err := token.BuildPointers(files, 2, token.TwoBytes)
	require.Error(t, err)
	assert.True(t, errorsIsAlignment(err))
}

// TestBuildPointersRejectsPartialTrailingToken checks a file whose size is
// not a whole number of tokens fails with AlignmentError.
func TestBuildPointersRejectsPartialTrailingToken(t *testing.T) {
	// seqLen=0 => seqBytes = 1 token * TwoBytes = 2; 5 bytes holds 2 whole
	// sequences plus one leftover byte.
	files := []token.FileInfo{{Locator: "odd.bin", Size: 5}}
	_, err := token.BuildPointers(files, 0, token.TwoBytes)
	require.Error(t, err)
	assert.True(t, errorsIsAlignment(err))
}

func errorsIsAlignment(err error) bool {
	var e *psycheerr.Error
	return asError(err, &e) && e.Kind == psycheerr.AlignmentErrorKind
}

func asError(err error, target **psycheerr.Error) bool {
	e, ok := err.(*psycheerr.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
