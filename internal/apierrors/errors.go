// Package apierrors defines the typed error taxonomy shared by the search
// engine, the enrichment pipeline, and the HTTP contract layer. Every error
// that can reach an HTTP response is expressed as one of these types so the
// envelope's error boundary can map it to a status code and a stable code
// string without string-matching error messages.
package apierrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier returned in API
// responses, independent of the human-readable message.
type Code string

const (
	CodeValidation          Code = "validation_error"
	CodeInvalidCursor       Code = "invalid_cursor"
	CodeNotFound            Code = "not_found"
	CodeRateLimited         Code = "rate_limited"
	CodeBackpressure        Code = "backpressure_rejected"
	CodeEmbeddingUnavailable Code = "embedding_unavailable"
	CodeEmbeddingShape      Code = "embedding_shape_mismatch"
	CodeBackendsUnavailable Code = "backends_unavailable"
	CodeUnitUnknown         Code = "unit_unknown"
	CodeColorUnknown        Code = "color_unknown"
	CodeConflict            Code = "conflict"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal"
)

// Error is the concrete type carried through the stack for every
// request-facing failure. Field is set for validation-style errors to point
// at the offending input.
type Error struct {
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving it for
// errors.Is/As and for diagnostic logging.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a field-scoped validation error.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// NotFound builds a not-found error for the given resource kind/id.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// As is a typed convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts the Code from err, defaulting to CodeInternal when err is
// not an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
