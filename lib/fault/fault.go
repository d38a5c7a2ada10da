package fault

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type Code uint8

const (
	CodeUnknown    Code = iota // 0: Unclassified error
	CodeValidation             // 1: A field failed validation
	CodeStream                 // 2: Reading the byte source failed
	CodeWorker                 // 3: A background worker raised an error
	CodeCancelled              // 4: The call was cancelled or the coordinator disposed
)

// String returns the string representation of a Code.
func (c Code) String() string {
	switch c {
	case CodeValidation:
		return "ValidationError"
	case CodeStream:
		return "StreamError"
	case CodeWorker:
		return "WorkerError"
	case CodeCancelled:
		return "CancelledError"
	default:
		return "UnknownError"
	}
}

// Sentinels for errors.Is. Only the Code is compared.
var (
	ErrValidation = &Error{Code: CodeValidation}
	ErrStream     = &Error{Code: CodeStream}
	ErrWorker     = &Error{Code: CodeWorker}
	ErrCancelled  = &Error{Code: CodeCancelled}
)

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error wraps a Code, the offending field path (validation errors only),
// a human-readable message and, for worker errors, the remote stack trace.
type Error struct {
	Code  Code
	Path  string
	Msg   string
	Stack string
	Err   error // optional cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.String())
	if e.Path != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Path)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Detail returns the message without the code prefix, e.g.
// "volumes[1].width: expected 64 (volumes[0]), got 32".
func (e *Error) Detail() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// --------------------------------------------------------------------------
// Factory Functions
// --------------------------------------------------------------------------

// NewValidation creates a validation error for the given field path.
func NewValidation(path string, format string, args ...interface{}) *Error {
	return &Error{
		Code: CodeValidation,
		Path: path,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// NewStream creates a stream error wrapping the given cause (may be nil).
func NewStream(err error, format string, args ...interface{}) *Error {
	return &Error{
		Code: CodeStream,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// NewWorker creates a worker error from a message and an optional stack trace.
func NewWorker(msg string, stack string) *Error {
	return &Error{
		Code:  CodeWorker,
		Msg:   msg,
		Stack: stack,
	}
}

// NewCancelled creates a cancellation error.
func NewCancelled(format string, args ...interface{}) *Error {
	return &Error{
		Code: CodeCancelled,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the Code of err if it is (or wraps) a *Error, otherwise CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
