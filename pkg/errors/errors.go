// Package errors defines the typed error taxonomy shared by the core services.
// Every error that crosses a package boundary carries a Kind so the transport
// layer can choose a status code without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for propagation policy and status mapping.
type Kind string

const (
	// KindValidation is client-caused and never retried.
	KindValidation Kind = "validation"
	// KindConflict signals identifier reuse with a differing payload.
	KindConflict Kind = "conflict"
	// KindUnavailable is a transient backend failure, retryable by the caller.
	KindUnavailable Kind = "unavailable"
	// KindDeadline means the retry budget was exhausted before the backend
	// answered. Distinct from KindUnavailable so callers can tell a hard
	// rejection from a timeout.
	KindDeadline Kind = "deadline"
	// KindNotFound is a valid read outcome, not a failure.
	KindNotFound Kind = "not_found"
	// KindInternal covers everything the core did not anticipate.
	KindInternal Kind = "internal"
)

// Error is the structured error surfaced to the gateway layer.
type Error struct {
	Kind   Kind
	Detail string
	// Fields lists failing field paths for validation errors.
	Fields []string

	wrapped error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %s)", e.Kind, e.Detail, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds an Error with the given kind and detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error that preserves the underlying cause for errors.Is/As.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, wrapped: err}
}

// Validation builds a field-level validation error.
func Validation(detail string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ToHTTPStatus maps an error kind to the status code the gateway should emit.
func ToHTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindDeadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
