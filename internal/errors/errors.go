package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeStructural  ErrorType = "STRUCTURAL_VIOLATION"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeUnsupported ErrorType = "UNSUPPORTED_ON_VARIANT"
	ErrorTypeMalformed   ErrorType = "MALFORMED_RECORD"
	ErrorTypeIO          ErrorType = "IO_FAILURE"
)

// Kind sentinels for errors.Is. Matching compares only the Type.
var (
	ErrStructural  = &Error{Type: ErrorTypeStructural}
	ErrNotFound    = &Error{Type: ErrorTypeNotFound}
	ErrUnsupported = &Error{Type: ErrorTypeUnsupported}
	ErrMalformed   = &Error{Type: ErrorTypeMalformed}
	ErrIO          = &Error{Type: ErrorTypeIO}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func StructuralViolation(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeStructural, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unsupported(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeUnsupported, Message: fmt.Sprintf(format, args...)}
}

func Malformed(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeMalformed, Message: fmt.Sprintf(format, args...)}
}

// IOFailure wraps an error coming from the storage collaborator.
func IOFailure(message string, cause error) *Error {
	return &Error{Type: ErrorTypeIO, Message: message, Cause: cause}
}

// TypeOf returns the kind of the first *Error in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}
