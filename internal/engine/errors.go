package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// Kind is the stable error category exposed to callers. The set is closed;
// transports switch on it to pick status codes and display text.
type Kind string

const (
	KindUnknownCommand Kind = "unknown_command"
	KindArityMismatch  Kind = "arity_mismatch"
	KindPathEscape     Kind = "path_escape"
	KindTimeout        Kind = "timeout"
	KindHandlerFailure Kind = "handler_failure"
)

// Error is the single failure shape produced by the engine. Message is safe
// to show to an end user: it never carries raw OS error strings or absolute
// host paths.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// AsEngineError extracts the typed error from an error chain, if present.
func AsEngineError(err error) (*Error, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

func errUnknownCommand(name string) *Error {
	return &Error{Kind: KindUnknownCommand, Message: fmt.Sprintf("command not allowed: %s", name)}
}

func errParse(msg string) *Error {
	return &Error{Kind: KindUnknownCommand, Message: msg}
}

func errArity(name string, min, max, got int) *Error {
	var want string
	switch {
	case min == max && min == 0:
		want = "no arguments"
	case min == max && min == 1:
		want = "exactly 1 argument"
	case min == max:
		want = fmt.Sprintf("exactly %d arguments", min)
	default:
		want = fmt.Sprintf("between %d and %d arguments", min, max)
	}
	return &Error{Kind: KindArityMismatch, Message: fmt.Sprintf("%s: expected %s, got %d", name, want, got)}
}

func errEscape(arg string) *Error {
	return &Error{Kind: KindPathEscape, Message: fmt.Sprintf("path escapes the permitted root: %s", arg)}
}

func errTimeout(limit time.Duration) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("command exceeded the %s time limit", limit)}
}

func errCanceled() *Error {
	return &Error{Kind: KindTimeout, Message: "command canceled before completion"}
}

func failf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindHandlerFailure, Message: fmt.Sprintf(format, args...), cause: cause}
}

// failOS maps a filesystem error onto a fixed message set so callers see a
// short cause summary instead of platform error text.
func failOS(op, display string, err error) *Error {
	var summary string
	switch {
	case errors.Is(err, fs.ErrNotExist):
		summary = "no such file or directory"
	case errors.Is(err, fs.ErrPermission):
		summary = "permission denied"
	case errors.Is(err, fs.ErrExist):
		summary = "file exists"
	default:
		summary = "operation failed"
	}
	return failf(err, "%s: %s: %s", op, display, summary)
}
