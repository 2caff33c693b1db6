package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/tcp/wire"
	"github.com/lucasonchain/psyche/pkg/token"
)

// Client implements provider.Provider over a single TCP connection to a
// Server. Requests are serialized onto the connection one at a time: the
// wire protocol carries no request id to demultiplex concurrent replies,
// so concurrent GetSamples calls from multiple goroutines are safe but not
// parallel across the connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial opens conn, sends Hello for runID with identityProof, and returns a
// Client ready to serve GetSamples/NumSequences. identityProof is opaque to
// this package; it is whatever the external authenticated transport
// requires the server to see.
func Dial(ctx context.Context, conn net.Conn, runID, identityProof string) (*Client, error) {
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if err := wire.WriteFrame(conn, wire.KindHello, wire.EncodeHello(wire.Hello{
		RunID:         runID,
		IdentityProof: identityProof,
	})); err != nil {
		conn.Close()
		return nil, psycheerr.Wrap(psycheerr.Network, "tcp: sending Hello", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, psycheerr.Wrap(psycheerr.Network, "tcp: clearing dial deadline", err)
	}
	return c, nil
}

// NumSequences asks the server for its sequence count.
func (c *Client) NumSequences() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wire.WriteFrame(c.conn, wire.KindNumSequencesRequest, nil); err != nil {
		return 0
	}
	kind, payload, err := wire.ReadFrame(c.r)
	if err != nil || kind != wire.KindLength {
		return 0
	}
	length, err := wire.DecodeLength(payload)
	if err != nil {
		return 0
	}
	return length.N
}

// GetSamples requests the sequences named by id and returns them in order,
// or the Kind-tagged error the server or transport surfaced.
func (c *Client) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := wire.WriteFrame(c.conn, wire.KindGetSamples, wire.EncodeGetSamplesRequest(wire.GetSamplesRequest{BatchID: id})); err != nil {
		return nil, psycheerr.Wrap(psycheerr.Network, "tcp: sending GetSamples", err)
	}
	kind, payload, err := wire.ReadFrame(c.r)
	if err != nil {
		return nil, psycheerr.Wrap(psycheerr.Network, "tcp: reading GetSamples response", err)
	}
	switch kind {
	case wire.KindSamples:
		samples, err := wire.DecodeSamples(payload)
		if err != nil {
			return nil, err
		}
		return samples.Sequences, nil
	case wire.KindReject:
		reject, err := wire.DecodeReject(payload)
		if err != nil {
			return nil, err
		}
		return nil, psycheerr.New(psycheerr.Unauthorized, "tcp: server rejected request: "+reject.Reason)
	default:
		return nil, psycheerr.New(psycheerr.TransportFramingError, "tcp: unexpected response kind "+kind.String())
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
