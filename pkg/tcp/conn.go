// Package tcp implements the TCP client/server back-end: request/response
// framing over pkg/tcp/wire, and coordinator-gated admission on the server
// side. The authenticated transport itself (public-key challenge/response)
// is an external collaborator; this package only consumes the identity it
// declares.
package tcp

import (
	"net"

	"github.com/lucasonchain/psyche/pkg/tcp/identity"
)

// AuthenticatedConn is a duplex connection already authenticated by an
// external transport layer (e.g. mutual TLS), which has bound it to a
// declared Identity. The server trusts this identity without re-verifying
// it; verification is out of scope for this package.
type AuthenticatedConn interface {
	net.Conn
	Identity() identity.Identity
}
