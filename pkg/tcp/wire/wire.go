// Package wire implements the compact, self-describing binary framing used
// between the TCP back-end's client and server: every frame is a one-byte
// kind, a little-endian four-byte length, and a payload. Strings are
// length-prefixed UTF-8; BatchId is two little-endian u64 values.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/token"
)

// Kind tags the payload that follows a frame header.
type Kind uint8

const (
	KindHello Kind = iota
	KindGetSamples
	KindNumSequencesRequest
	KindSamples
	KindLength
	KindReject
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindGetSamples:
		return "GetSamples"
	case KindNumSequencesRequest:
		return "NumSequences"
	case KindSamples:
		return "Samples"
	case KindLength:
		return "Length"
	case KindReject:
		return "Reject"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// maxFrameLength bounds a single frame's payload to guard against a
// malformed or hostile length field forcing an unbounded allocation.
const maxFrameLength = 256 << 20 // 256MiB

// Hello is the client's first message: the run it believes it is joining
// and an opaque identity proof supplied by the external authenticated
// transport (this package neither interprets nor verifies it).
type Hello struct {
	RunID         string
	IdentityProof string
}

// GetSamplesRequest asks the server for every sequence in BatchID.
type GetSamplesRequest struct {
	BatchID token.BatchId
}

// Samples is the server's response body to GetSamples: the sequences in
// the requested batch's order, each a flat list of token values.
type Samples struct {
	Sequences [][]token.Token
}

// Length is the server's response to NumSequences.
type Length struct {
	N uint64
}

// Reject carries the reason a request was refused.
type Reject struct {
	Reason string
}

// WriteFrame writes kind and payload as one frame.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	if len(payload) > maxFrameLength {
		return psycheerr.New(psycheerr.TransportFramingError, fmt.Sprintf("payload of %d bytes exceeds max frame length", len(payload)))
	}
	var header [5]byte
	header[0] = byte(kind)
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return psycheerr.Wrap(psycheerr.Network, "wire: writing frame header", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return psycheerr.Wrap(psycheerr.Network, "wire: writing frame payload", err)
	}
	return nil
}

// ReadFrame reads one frame's kind and raw payload.
func ReadFrame(r *bufio.Reader) (Kind, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, err
		}
		return 0, nil, psycheerr.Wrap(psycheerr.Network, "wire: reading frame header", err)
	}
	kind := Kind(header[0])
	length := binary.LittleEndian.Uint32(header[1:])
	if length > maxFrameLength {
		return 0, nil, psycheerr.New(psycheerr.TransportFramingError, fmt.Sprintf("frame length %d exceeds max", length))
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, psycheerr.Wrap(psycheerr.Network, "wire: reading frame payload", err)
		}
	}
	return kind, payload, nil
}

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

// EncodeHello serializes a Hello payload.
func EncodeHello(h Hello) []byte {
	var buf []byte
	buf = putString(buf, h.RunID)
	buf = putString(buf, h.IdentityProof)
	return buf
}

// DecodeHello parses a Hello payload.
func DecodeHello(buf []byte) (Hello, error) {
	runID, rest, err := getString(buf)
	if err != nil {
		return Hello{}, err
	}
	proof, _, err := getString(rest)
	if err != nil {
		return Hello{}, err
	}
	return Hello{RunID: runID, IdentityProof: proof}, nil
}

// EncodeBatchID serializes a BatchId as two little-endian u64 values.
func EncodeBatchID(id token.BatchId) []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], id.Start)
	binary.LittleEndian.PutUint64(buf[8:16], id.End)
	return buf[:]
}

// DecodeBatchID parses a BatchId from its wire form.
func DecodeBatchID(buf []byte) (token.BatchId, error) {
	if len(buf) < 16 {
		return token.BatchId{}, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated BatchId")
	}
	start := binary.LittleEndian.Uint64(buf[0:8])
	end := binary.LittleEndian.Uint64(buf[8:16])
	if end < start {
		return token.BatchId{}, psycheerr.New(psycheerr.TransportFramingError, "wire: BatchId end < start")
	}
	return token.BatchId{Start: start, End: end}, nil
}

// EncodeGetSamplesRequest serializes a GetSamplesRequest payload.
func EncodeGetSamplesRequest(req GetSamplesRequest) []byte {
	return EncodeBatchID(req.BatchID)
}

// DecodeGetSamplesRequest parses a GetSamplesRequest payload.
func DecodeGetSamplesRequest(buf []byte) (GetSamplesRequest, error) {
	id, err := DecodeBatchID(buf)
	if err != nil {
		return GetSamplesRequest{}, err
	}
	return GetSamplesRequest{BatchID: id}, nil
}

// EncodeSamples serializes a Samples payload as: u32 sequence count, then
// for each sequence a u32 token count followed by that many little-endian
// u32 token values (the wire form always uses the wider width regardless
// of the back-end's on-disk TokenSize, so client and server need not agree
// on storage width).
func EncodeSamples(s Samples) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(s.Sequences)))
	buf = append(buf, countBuf[:]...)
	for _, seq := range s.Sequences {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(seq)))
		buf = append(buf, n[:]...)
		for _, tok := range seq {
			var tb [4]byte
			binary.LittleEndian.PutUint32(tb[:], uint32(int32(tok)))
			buf = append(buf, tb[:]...)
		}
	}
	return buf
}

// DecodeSamples parses a Samples payload.
func DecodeSamples(buf []byte) (Samples, error) {
	if len(buf) < 4 {
		return Samples{}, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated Samples count")
	}
	count := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	seqs := make([][]token.Token, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 4 {
			return Samples{}, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated sequence length")
		}
		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		if uint64(len(buf)) < uint64(n)*4 {
			return Samples{}, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated sequence body")
		}
		seq := make([]token.Token, n)
		for j := uint32(0); j < n; j++ {
			seq[j] = token.Token(int32(binary.LittleEndian.Uint32(buf)))
			buf = buf[4:]
		}
		seqs = append(seqs, seq)
	}
	return Samples{Sequences: seqs}, nil
}

// EncodeLength serializes a Length payload.
func EncodeLength(l Length) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], l.N)
	return buf[:]
}

// DecodeLength parses a Length payload.
func DecodeLength(buf []byte) (Length, error) {
	if len(buf) < 8 {
		return Length{}, psycheerr.New(psycheerr.TransportFramingError, "wire: truncated Length")
	}
	return Length{N: binary.LittleEndian.Uint64(buf)}, nil
}

// EncodeReject serializes a Reject payload.
func EncodeReject(r Reject) []byte {
	return putString(nil, r.Reason)
}

// DecodeReject parses a Reject payload.
func DecodeReject(buf []byte) (Reject, error) {
	reason, _, err := getString(buf)
	if err != nil {
		return Reject{}, err
	}
	return Reject{Reason: reason}, nil
}
