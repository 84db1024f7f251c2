// Package errors provides coded domain errors so transport layers can map
// failures onto wire responses without string matching. Services create or
// wrap errors with a Code; handlers translate codes into HTTP statuses.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. The set is closed on purpose: callers of
// the engine receive one of a small number of failure classes, never raw
// driver errors.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"

	// CodeBusinessRejected marks an expected, recoverable business outcome
	// (validation failure, insufficient funds). The unit rolled back cleanly.
	CodeBusinessRejected Code = "business_rejected"

	// CodeFatal marks an unexpected failure of the engine or its store:
	// flush/commit failures, panics in business work, unknown outcomes.
	CodeFatal Code = "fatal"

	// CodeMethodNotAllowed is returned for any attempt to update or delete
	// audit history through a standard write API.
	CodeMethodNotAllowed Code = "method_not_allowed"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// yields a plain coded error.
func Wrap(cause error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when
// err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
