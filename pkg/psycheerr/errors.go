// Package psycheerr defines the error taxonomy shared by every back-end.
// Back-ends surface their error Kind unchanged; the façade in pkg/provider
// propagates without transformation. The core performs no retries: the only
// recovery implemented here is the HTTP back-end's per-request timeout
// cancellation, after which the back-end itself remains healthy.
package psycheerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories a back-end may surface.
type Kind int

const (
	// ConfigError indicates a malformed catalogue, a zero-sized file, an
	// unrecognized file extension, a non-positive weight, or an empty
	// sub-provider list.
	ConfigError Kind = iota
	// AlignmentErrorKind indicates a file's length is not a whole number of
	// tokens, or is smaller than one sequence.
	AlignmentErrorKind
	// OutOfRange indicates a requested index is >= NumSequences().
	OutOfRange
	// Network indicates a connection was refused, reset, or a DNS lookup
	// failed.
	Network
	// Timeout indicates a per-request deadline was exceeded.
	Timeout
	// HTTPStatus indicates a non-2xx/206 HTTP response.
	HTTPStatus
	// Truncated indicates returned bytes were shorter than the requested
	// range.
	Truncated
	// Unauthorized indicates a TCP server rejected a request because the
	// identity was not part of the current round, or the requested batch
	// was not a subset of its assignment.
	Unauthorized
	// TransportFramingError indicates a malformed TCP wire frame.
	TransportFramingError
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case AlignmentErrorKind:
		return "AlignmentError"
	case OutOfRange:
		return "OutOfRange"
	case Network:
		return "Network"
	case Timeout:
		return "Timeout"
	case HTTPStatus:
		return "HttpStatus"
	case Truncated:
		return "Truncated"
	case Unauthorized:
		return "Unauthorized"
	case TransportFramingError:
		return "TransportFramingError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a Kind-tagged error. It wraps an underlying cause (optional) and
// carries a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	// Code is the HTTP status code when Kind == HTTPStatus; zero otherwise.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, psycheerr.ErrOutOfRange) style checks by comparing
// Kind, in addition to the usual identity comparison errors.Is already
// performs on *Error values.
func (e *Error) Is(target error) bool {
	var k kindSentinel
	if errors.As(target, &k) {
		return e.Kind == Kind(k)
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// kindSentinel lets bare Kind values participate in errors.Is via Error.Is.
type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

// Sentinel Kind values usable directly with errors.Is, e.g.
// errors.Is(err, psycheerr.ErrOutOfRange).
var (
	ErrConfig        error = kindSentinel(ConfigError)
	ErrAlignment     error = kindSentinel(AlignmentErrorKind)
	ErrOutOfRange    error = kindSentinel(OutOfRange)
	ErrNetwork       error = kindSentinel(Network)
	ErrTimeout       error = kindSentinel(Timeout)
	ErrHTTPStatus    error = kindSentinel(HTTPStatus)
	ErrTruncated     error = kindSentinel(Truncated)
	ErrUnauthorized  error = kindSentinel(Unauthorized)
	ErrFramingError  error = kindSentinel(TransportFramingError)
)

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WrapHTTPStatus constructs an *Error of Kind HTTPStatus for a non-2xx/206
// response.
func WrapHTTPStatus(code int, message string) *Error {
	return &Error{Kind: HTTPStatus, Code: code, Message: message}
}
