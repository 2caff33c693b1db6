package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/lucasonchain/psyche/pkg/coordinator"
	"github.com/lucasonchain/psyche/pkg/logging"
	"github.com/lucasonchain/psyche/pkg/metrics"
	"github.com/lucasonchain/psyche/pkg/provider"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/tcp/identity"
	"github.com/lucasonchain/psyche/pkg/tcp/wire"
	"github.com/lucasonchain/psyche/pkg/token"
)

// connState tracks a single connection's progress through
// Unauthenticated -> Authenticated -> Serving.
type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateServing
)

// Server serves the retrieval contract over TCP, gated by a coordinator
// view consulted on every GetSamples request. It owns one back-end
// (typically local or HTTP) and delegates retrieval to it.
type Server struct {
	runID   string
	backend provider.Provider
	views   *coordinator.Holder
	log     logging.Logger
	metrics *metrics.TCP
}

// NewServer returns a Server for runID, serving backend, gated by views.
func NewServer(runID string, backend provider.Provider, views *coordinator.Holder, log logging.Logger, m *metrics.TCP) *Server {
	return &Server{
		runID:   runID,
		backend: backend,
		views:   views,
		log:     logging.Component(log, "tcp-server"),
		metrics: m,
	}
}

// Serve handles one connection's entire lifecycle: Hello, then any number
// of GetSamples/NumSequences requests, until the connection closes or ctx
// is cancelled. A request refused after Hello does not abort the
// connection: a Reject frame is sent on the wire and the loop continues. A
// missing or mismatched Hello is answered with a Reject frame and ends the
// connection.
func (s *Server) Serve(ctx context.Context, conn AuthenticatedConn) error {
	defer conn.Close()
	if s.metrics != nil {
		s.metrics.ActiveConns.Inc()
		defer s.metrics.ActiveConns.Dec()
	}

	r := bufio.NewReader(conn)
	state := stateUnauthenticated

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind, payload, err := wire.ReadFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch state {
		case stateUnauthenticated:
			if kind != wire.KindHello {
				return s.refuse(conn, "expected Hello")
			}
			hello, err := wire.DecodeHello(payload)
			if err != nil {
				return err
			}
			if hello.RunID != s.runID {
				return s.refuse(conn, "run_id mismatch")
			}
			state = stateAuthenticated
		default:
			state = stateServing
			if err := s.handleRequest(ctx, conn, kind, payload); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn AuthenticatedConn, kind wire.Kind, payload []byte) error {
	id := conn.Identity()
	switch kind {
	case wire.KindNumSequencesRequest:
		return wire.WriteFrame(conn, wire.KindLength, wire.EncodeLength(wire.Length{N: s.backend.NumSequences()}))
	case wire.KindGetSamples:
		req, err := wire.DecodeGetSamplesRequest(payload)
		if err != nil {
			return err
		}
		if !s.admits(id, req.BatchID) {
			if s.metrics != nil {
				s.metrics.Rejections.WithLabelValues(string(id), psycheerr.Unauthorized.String()).Inc()
			}
			return s.refuse(conn, psycheerr.Unauthorized.String())
		}
		seqs, err := s.backend.GetSamples(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.SequencesServed.WithLabelValues(string(id)).Add(float64(len(seqs)))
		}
		payload := wire.EncodeSamples(wire.Samples{Sequences: seqs})
		if s.metrics != nil {
			s.metrics.BytesOut.WithLabelValues(string(id)).Add(float64(len(payload)))
		}
		return wire.WriteFrame(conn, wire.KindSamples, payload)
	default:
		return s.refuse(conn, "unexpected message kind "+kind.String())
	}
}

func (s *Server) admits(id identity.Identity, batch token.BatchId) bool {
	view := s.views.Current()
	return view != nil && view.Admits(id, batch)
}

func (s *Server) refuse(conn AuthenticatedConn, reason string) error {
	return wire.WriteFrame(conn, wire.KindReject, wire.EncodeReject(wire.Reject{Reason: reason}))
}
