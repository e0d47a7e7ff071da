// Package errors defines the panel's error taxonomy. Import it as apperrors.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind identifies a class of error for programmatic handling.
type Kind string

const (
	KindForbidden         Kind = "forbidden"
	KindInvalidPath       Kind = "invalid_path"
	KindInvalidName       Kind = "invalid_name"
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindCompressionFailed Kind = "compression_failed"
	KindCommandBlocked    Kind = "command_blocked"
	KindCommandTimeout    Kind = "command_timeout"
	KindInternal          Kind = "internal"
)

var defaultMessages = map[Kind]string{
	KindForbidden:         "access denied",
	KindInvalidPath:       "invalid path",
	KindInvalidName:       "invalid name",
	KindInvalidArgument:   "invalid request",
	KindNotFound:          "item not found",
	KindAlreadyExists:     "item already exists",
	KindQuotaExceeded:     "file exceeds the upload limit",
	KindCompressionFailed: "compression failed",
	KindCommandBlocked:    "command blocked for security reasons",
	KindCommandTimeout:    "command timed out",
	KindInternal:          "internal error",
}

// Error carries a Kind plus the operation and path it happened on.
// Message is safe to show to clients; Path and Err are for logs.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates an error of the given kind with a client-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// FromOS classifies a filesystem error. Errors that already carry a Kind
// are returned unchanged.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return err
	}
	kind := KindInternal
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case stderrors.Is(err, fs.ErrExist), stderrors.Is(err, syscall.ENOTEMPTY):
		kind = KindAlreadyExists
	case stderrors.Is(err, fs.ErrPermission):
		kind = KindForbidden
	}
	return &Error{Kind: kind, Op: op, Path: path, Message: defaultMessages[kind], Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err. Errors without a Kind
// are reported generically so internals do not leak.
func Message(err error) string {
	var ae *Error
	if stderrors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		return defaultMessages[ae.Kind]
	}
	return defaultMessages[KindInternal]
}
