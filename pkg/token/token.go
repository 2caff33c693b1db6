// Package token defines the addressing primitives shared by every back-end:
// the on-disk token width, the in-memory token type, fixed-length sequences,
// and the byte-range bookkeeping (SequencePointer, BatchId) used to locate
// sequences inside an arbitrary number of runtime-discovered files.
package token

import (
	"encoding/binary"
	"fmt"

	"github.com/lucasonchain/psyche/pkg/psycheerr"
)

// Token is the canonical in-memory representation of a single token. Input
// widths are always unsigned; Token is signed purely as a convenience for
// downstream arithmetic. TwoBytes values always decode to non-negative
// Tokens; a FourBytes value of 2^31 or more keeps its bit pattern and so
// decodes to a negative Token.
type Token int32

// Size enumerates the on-disk/on-wire width of a single token.
type Size int

const (
	// TwoBytes stores each token as a little-endian uint16.
	TwoBytes Size = iota
	// FourBytes stores each token as a little-endian uint32.
	FourBytes
)

// String implements fmt.Stringer.
func (s Size) String() string {
	switch s {
	case TwoBytes:
		return "TwoBytes"
	case FourBytes:
		return "FourBytes"
	default:
		return fmt.Sprintf("Size(%d)", int(s))
	}
}

// Bytes returns the width, in bytes, of a single token under this size.
func (s Size) Bytes() int64 {
	switch s {
	case TwoBytes:
		return 2
	case FourBytes:
		return 4
	default:
		panic(fmt.Sprintf("token: unknown Size %d", int(s)))
	}
}

// SequenceBytes returns the number of bytes occupied by one sequence of
// seqLen+1 tokens at this width.
func (s Size) SequenceBytes(seqLen int) int64 {
	return int64(seqLen+1) * s.Bytes()
}

// Decode converts a flat little-endian byte slice into Tokens according to
// s. len(buf) must be a multiple of s.Bytes(); callers that have already
// validated alignment (as every back-end does at construction) never hit
// the panic below.
func (s Size) Decode(buf []byte) []Token {
	width := int(s.Bytes())
	if len(buf)%width != 0 {
		panic(fmt.Sprintf("token: buffer length %d is not a multiple of token width %d", len(buf), width))
	}
	n := len(buf) / width
	out := make([]Token, n)
	switch s {
	case TwoBytes:
		for i := 0; i < n; i++ {
			out[i] = Token(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case FourBytes:
		for i := 0; i < n; i++ {
			out[i] = Token(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	return out
}

// BatchId is a closed integer interval [Start, End] naming one or more
// contiguous sequence indices in a provider's post-shuffle ordering. An
// interval of width one addresses a single sequence.
type BatchId struct {
	Start uint64
	End   uint64
}

// NewBatchId constructs a BatchId, panicking if end < start (callers that
// build a BatchId from a single index should use SingleBatchId instead).
func NewBatchId(start, end uint64) BatchId {
	if end < start {
		panic(fmt.Sprintf("token: invalid BatchId [%d,%d]: end < start", start, end))
	}
	return BatchId{Start: start, End: end}
}

// SingleBatchId returns the width-one interval [idx, idx].
func SingleBatchId(idx uint64) BatchId {
	return BatchId{Start: idx, End: idx}
}

// Width returns the number of sequence indices named by b.
func (b BatchId) Width() uint64 {
	return b.End - b.Start + 1
}

// Contains reports whether b is a subset of other.
func (b BatchId) Contains(other BatchId) bool {
	return other.Start <= b.Start && b.End <= other.End
}

// SequencePointer identifies where a sequence begins in a back-end's file
// catalogue: the index of the file in the catalogue, and the byte offset of
// the sequence's first token within that file.
type SequencePointer struct {
	FileIndex  int
	ByteOffset int64
}

// FileInfo is one entry of a FileCatalogue: a locator (path or URL) paired
// with its size in bytes, discovered at construction time.
type FileInfo struct {
	Locator string
	Size    int64
}

// BuildPointers returns, in file-then-offset order, the SequencePointer for
// every whole sequence of width seqLen+1 tokens (at the given token size)
// that fits within files. It returns a psycheerr AlignmentErrorKind error,
// naming the file and the reason, for any file whose size holds fewer than
// one sequence or is not a whole number of tokens.
//
// A file may contain multiple sequences; BuildPointers tiles them
// back-to-back starting at offset 0, matching the "flat array of tokens, no
// header" on-disk format. Trailing whole tokens that do not fill one more
// sequence are dropped.
func BuildPointers(files []FileInfo, seqLen int, size Size) ([]SequencePointer, error) {
	seqBytes := size.SequenceBytes(seqLen)
	var pointers []SequencePointer
	for fi, f := range files {
		if f.Size < seqBytes {
			return nil, psycheerr.New(psycheerr.AlignmentErrorKind, fmt.Sprintf(
				"file %d (%s) has size %d, smaller than one sequence (%d bytes)",
				fi, f.Locator, f.Size, seqBytes))
		}
		if f.Size%size.Bytes() != 0 {
			return nil, psycheerr.New(psycheerr.AlignmentErrorKind, fmt.Sprintf(
				"file %d (%s) has size %d, not a whole number of %d-byte tokens",
				fi, f.Locator, f.Size, size.Bytes()))
		}
		count := f.Size / seqBytes
		for i := int64(0); i < count; i++ {
			pointers = append(pointers, SequencePointer{FileIndex: fi, ByteOffset: i * seqBytes})
		}
	}
	return pointers, nil
}
