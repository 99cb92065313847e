// Package thinkerr defines the small typed error taxonomy shared by every
// layer of the thinking engine, from tree mutation up through the request
// pipeline.
package thinkerr

import "fmt"

// Code tags an error with the category the external response payload
// expects in its "error" field.
type Code string

const (
	Validation    Code = "VALIDATION_ERROR"
	BusinessLogic Code = "BUSINESS_LOGIC_ERROR"
	Security      Code = "SECURITY_ERROR"
	Tree          Code = "TREE_ERROR"
	Internal      Code = "INTERNAL_ERROR"
)

// Error is a taxonomy-tagged error. It wraps an optional underlying cause
// so callers can still use errors.Is/errors.As against it.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an existing error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, defaulting to Internal for
// anything that isn't a *Error.
func CodeOf(err error) Code {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Code
	}
	return Internal
}
