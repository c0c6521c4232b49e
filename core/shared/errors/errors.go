// Package errors defines the closed error taxonomy of the engine.
//
// Every fallible operation in the engine returns an *EngineError (directly or
// inside a MULTI_ERROR). Driver-native errors are translated into this
// taxonomy at the connectors boundary and never propagate upward in native
// form. Callers use KindOf / Is to branch on error kinds without importing
// driver packages.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Code identifies one kind in the closed error taxonomy. Extend deliberately:
// adding a database family means revisiting every normalizer switch.
type Code string

const (
	ErrCodeMalformedConnectionString Code = "MALFORMED_CONNECTION_STRING"
	ErrCodeUnsupportedDatabaseFamily Code = "UNSUPPORTED_DATABASE_FAMILY"
	ErrCodeConnectionError           Code = "CONNECTION_ERROR"
	ErrCodeAuthenticationFailed      Code = "AUTHENTICATION_FAILED"
	ErrCodeQueryError                Code = "QUERY_ERROR"
	ErrCodeUniqueConstraintViolation Code = "UNIQUE_CONSTRAINT_VIOLATION"
	ErrCodeRawError                  Code = "RAW_ERROR"
	ErrCodeMultiError                Code = "MULTI_ERROR"
	ErrCodeInternalConversionError   Code = "INTERNAL_CONVERSION_ERROR"
	ErrCodeConversionError           Code = "CONVERSION_ERROR"
	ErrCodeIntrospectionResultEmpty  Code = "INTROSPECTION_RESULT_EMPTY"
	ErrCodeAlreadyConnected          Code = "ALREADY_CONNECTED"
	ErrCodeNotConnected              Code = "NOT_CONNECTED"
)

// DatabaseConstraint names the constraint behind a unique violation. The name
// is recovered from free-text driver diagnostics, so parsing is best-effort:
// when the message shape is not recognized, CannotParse is set instead.
type DatabaseConstraint struct {
	Index       string
	CannotParse bool
}

// IndexConstraint returns a constraint identified by index name.
func IndexConstraint(name string) DatabaseConstraint {
	return DatabaseConstraint{Index: name}
}

// UnparsedConstraint marks a constraint whose name could not be recovered.
func UnparsedConstraint() DatabaseConstraint {
	return DatabaseConstraint{CannotParse: true}
}

func (c DatabaseConstraint) String() string {
	if c.CannotParse {
		return "(not available)"
	}
	return c.Index
}

// EngineError is the single error type crossing the engine's boundaries.
// Exactly one Code is set; the payload fields used depend on it.
type EngineError struct {
	Code    Code
	Message string

	// Identity is the rejected user, when AUTHENTICATION_FAILED.
	Identity string
	// Constraint is set for UNIQUE_CONSTRAINT_VIOLATION.
	Constraint *DatabaseConstraint
	// RawCode carries the native status code for RAW_ERROR.
	RawCode string
	// From/To are set for CONVERSION_ERROR.
	From, To string
	// URL is set for INTROSPECTION_RESULT_EMPTY.
	URL string
	// Errors holds the ordered sub-failures of a MULTI_ERROR.
	Errors []*EngineError

	// Err preserves the native error text for diagnostics. It never replaces
	// the normalized Code as the caller-facing classification.
	Err error
}

func (e *EngineError) Error() string {
	if e.Code == ErrCodeMultiError {
		parts := make([]string, len(e.Errors))
		for i, sub := range e.Errors {
			parts[i] = sub.Error()
		}
		return fmt.Sprintf("%s: [%s]", e.Code, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the native cause to errors.Is / errors.As chains.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// New creates an EngineError without a native cause.
func New(code Code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Wrap creates an EngineError preserving the native cause.
func Wrap(code Code, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// NewAuthenticationFailed reports a rejected login for the given identity.
// The identity is extracted from driver messages and may be empty.
func NewAuthenticationFailed(identity string, err error) *EngineError {
	return &EngineError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  fmt.Sprintf("authentication failed for %q", identity),
		Identity: identity,
		Err:      err,
	}
}

// NewUniqueConstraintViolation reports a duplicate-key write conflict.
func NewUniqueConstraintViolation(constraint DatabaseConstraint, err error) *EngineError {
	return &EngineError{
		Code:       ErrCodeUniqueConstraintViolation,
		Message:    fmt.Sprintf("unique constraint violated: %s", constraint),
		Constraint: &constraint,
		Err:        err,
	}
}

// NewRawError passes a native status code and message through verbatim.
// It is also the catch-all for unmapped native errors, with code "unknown".
func NewRawError(code, message string) *EngineError {
	return &EngineError{
		Code:    ErrCodeRawError,
		Message: message,
		RawCode: code,
	}
}

// NewMultiError aggregates the ordered sub-failures of one batched native
// operation. Order matches the order reported by the driver.
func NewMultiError(errs []*EngineError) *EngineError {
	return &EngineError{
		Code:    ErrCodeMultiError,
		Message: fmt.Sprintf("%d errors occurred", len(errs)),
		Errors:  errs,
	}
}

// NewConversionError reports a failed value conversion between two shapes.
func NewConversionError(from, to string) *EngineError {
	return &EngineError{
		Code:    ErrCodeConversionError,
		Message: fmt.Sprintf("failed to convert %q to %q", from, to),
		From:    from,
		To:      to,
	}
}

// NewIntrospectionResultEmpty distinguishes "introspection ran but found
// nothing" from a successful empty document.
func NewIntrospectionResultEmpty(url string) *EngineError {
	return &EngineError{
		Code:    ErrCodeIntrospectionResultEmpty,
		Message: fmt.Sprintf("introspected database at %s is empty", url),
		URL:     url,
	}
}

// NewAlreadyConnected rejects a connect on an already connected engine.
func NewAlreadyConnected() *EngineError {
	return New(ErrCodeAlreadyConnected, "engine is already connected")
}

// NewNotConnected rejects an operation that requires a connected engine.
func NewNotConnected() *EngineError {
	return New(ErrCodeNotConnected, "engine is not connected")
}

// KindOf returns the taxonomy code of err, or "" for foreign errors.
func KindOf(err error) Code {
	if e := AsEngineError(err); e != nil {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	return KindOf(err) == code
}

// AsEngineError returns err as *EngineError when it is one, else nil. It does
// not unwrap: normalization happens at the boundary, so an EngineError is
// always the outermost value.
func AsEngineError(err error) *EngineError {
	if e, ok := err.(*EngineError); ok {
		return e
	}
	return nil
}

// HTTPStatus maps a taxonomy code to an HTTP status for the server surface.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeMalformedConnectionString, ErrCodeUnsupportedDatabaseFamily, ErrCodeQueryError:
		return http.StatusBadRequest
	case ErrCodeAuthenticationFailed:
		return http.StatusUnauthorized
	case ErrCodeUniqueConstraintViolation, ErrCodeAlreadyConnected, ErrCodeNotConnected:
		return http.StatusConflict
	case ErrCodeIntrospectionResultEmpty:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
