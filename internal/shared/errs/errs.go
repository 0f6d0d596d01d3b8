// Package errs defines the error taxonomy shared by every component that
// talks to the sandbox API.
//
// Each failure is classified into a Kind so callers can decide between
// tearing the session down (Unauthorized), retrying later (Unreachable),
// or surfacing a non-blocking notice (everything else). Components never
// throw into unrelated state: an operation resolves to a value or to one
// of these errors, and cached state is left untouched on failure.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a sandbox operation failure.
type Kind int

const (
	// Unknown covers unparseable or unclassified backend errors.
	Unknown Kind = iota

	// Unauthorized means the credential was rejected. Terminal for the
	// session; never retried.
	Unauthorized

	// Unreachable is a transport-level failure (timeout, refused
	// connection). Transient; the caller may retry.
	Unreachable

	// NotFound means the addressed path does not exist.
	NotFound

	// Conflict means a name collision was reported by the backend.
	Conflict

	// PayloadTooLarge means an upload was rejected by size.
	PayloadTooLarge

	// Invalid is client-side validation failure, e.g. a malformed
	// secret key or a bad index.
	Invalid
)

// String returns the wire-friendly name of the kind.
func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Unreachable:
		return "unreachable"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case PayloadTooLarge:
		return "payload_too_large"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is the single error shape surfaced by the bridge.
type Error struct {
	Kind    Kind
	Message string
	Code    string // optional backend-provided code
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode attaches a backend error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Synthetic is substituted when a non-2xx body cannot be parsed.
func Synthetic(kind Kind) *Error {
	return &Error{Kind: kind, Message: "transport error", Code: "unknown"}
}

// KindOf extracts the kind from an error chain. Non-taxonomy errors
// report Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the failure is transient. Only transport
// failures qualify; the core never auto-retries either way.
func Retryable(err error) bool {
	return Is(err, Unreachable)
}

// Terminal reports whether the failure ends the session.
func Terminal(err error) bool {
	return Is(err, Unauthorized)
}

// KindFromStatus maps an HTTP status to a failure kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Unauthorized
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict:
		return Conflict
	case http.StatusRequestEntityTooLarge:
		return PayloadTooLarge
	default:
		return Unknown
	}
}
