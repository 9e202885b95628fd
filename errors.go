// Package pathery defines the error taxonomy and small cross-cutting
// primitives (correlation ids, document ids) shared by every other package
// in this module.
package pathery

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind classifies an Error the way the HTTP adapters need to, per the error
// mapping table in the spec: InvalidRequest->400, NotFound->404,
// RateLimit->429, InternalError->500.
type Kind int

const (
	// KindInvalidRequest means the client payload was malformed: not an
	// object, an empty document, a bad query, a missing path parameter.
	KindInvalidRequest Kind = iota
	// KindNotFound means the index_id has no schema configuration, or a
	// strict lookup found nothing.
	KindNotFound
	// KindRateLimit means a downstream batch call left items unprocessed.
	KindRateLimit
	// KindInternal is everything else: infra failures, timeouts, bugs.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindNotFound:
		return "NotFound"
	case KindRateLimit:
		return "RateLimit"
	case KindInternal:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is the single error type that crosses package boundaries inside
// core. Adapters (cmd/) map Kind to an HTTP status and render Kind and
// Message; ID is not part of their response body, only of Error()'s text,
// which they log.
type Error struct {
	Kind    Kind
	Message string
	ID      string // correlation id, set only for KindInternal
	err     error  // wrapped cause, not part of the wire representation
}

// HTTPStatus maps Kind to the status code an HTTP adapter should respond
// with, per the error mapping table in the spec: InvalidRequest->400,
// NotFound->404, RateLimit->429, InternalError->500.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return 400
	case KindNotFound:
		return 404
	case KindRateLimit:
		return 429
	default:
		return 500
	}
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Kind, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Invalid builds a KindInvalidRequest error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a KindRateLimit error.
func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimit, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps err as a KindInternal error, stamping a correlation id.
// The id appears in Error()'s text, and so in the cmd/ adapters' error
// logs; their JSON error responses do not include it.
func Internal(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: err.Error(),
		ID:      NewID(),
		err:     err,
	}
}

// Internalf builds a KindInternal error from a format string.
func Internalf(format string, args ...any) *Error {
	return Internal(fmt.Errorf(format, args...))
}

// As reports whether err is (or wraps) a *pathery.Error and, if so, returns
// it. It's a thin convenience over errors.As used throughout the adapters.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Sentinel errors for conditions with a single, well-known cause — mirrors
// the teacher's ErrKeyNotFound style of a package-level sentinel rather than
// a one-off string, so callers can errors.Is against it.
var (
	ErrEmptyDocument = Invalid("document has no fields after schema filtering")
	ErrNotAnObject   = Invalid("request body is not a JSON object")
	ErrInvalidIDType = Invalid("__id must be a string")
)

// NewID returns a uniformly random 128-bit identifier rendered as 32 lower
// hex characters. This is deliberately not a RFC-4122 UUID: a real UUIDv4
// fixes version and variant bits and so is not uniformly random over the
// full 128 bits, which the schema's __id invariant (and several downstream
// content-addressing schemes) assume.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which is unrecoverable for a process that needs
		// unique ids; panic rather than hand back a degraded id.
		panic(fmt.Sprintf("pathery: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b[:])
}
