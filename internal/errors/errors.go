package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	ErrCodeNotFound               Code = "not_found"
	ErrCodeInvalidInput           Code = "invalid_input"
	ErrCodeConflict               Code = "conflict"
	ErrCodeUnauthorized           Code = "unauthorized"
	ErrCodeInternal               Code = "internal"
	ErrCodeInvalidStatus          Code = "invalid_status"
	ErrCodeAlreadyVoted           Code = "already_voted"
	ErrCodeConcurrentModification Code = "concurrent_modification"
)

// Error is a coded error. Message is safe to show to API callers; the wrapped
// cause (if any) is not.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// CodeOf returns the code carried by err, or ErrCodeInternal when err carries
// no code.
func CodeOf(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the caller-safe message carried by err, or a generic
// message when err carries none.
func MessageOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
