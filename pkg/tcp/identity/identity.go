// Package identity defines the opaque client identity type shared by the
// TCP back-end's server, client, and the coordinator view it consults. It
// is split out from pkg/tcp itself so pkg/coordinator can depend on the
// identity type without depending on the server/client package that in
// turn depends on pkg/coordinator.
package identity

// Identity names a TCP client, as declared by the external authenticated
// transport. It is a named string rather than a bare string so coordinator
// view maps are keyed by a domain-specific, self-documenting type.
type Identity string
