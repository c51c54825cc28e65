// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
//
// Errors declared with New are meant to be used as package-level sentinels:
// wrapping never mutates the sentinel, so the same sentinel may be wrapped
// concurrently from many goroutines.
package errors

import (
	stderr "errors"
	"fmt"

	"go.uber.org/zap"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// The main difference with github.com/pkg/errors is that we are wrapping
// errors from errors, not from text.
type Error struct {
	msg    string
	detail string
	err    error
	origin *Error
}

// Error message
func (e *Error) Error() string {
	msg := e.msg
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) root() *Error {
	if e.origin != nil {
		return e.origin
	}
	return e
}

// Wrap a nested error. The receiver is left untouched.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, detail: e.detail, err: err, origin: e.root()}
}

// WrapMessage adds some formatted detail to the error message.
func (e *Error) WrapMessage(format string, args ...interface{}) *Error {
	detail := fmt.Sprintf(format, args...)
	if e.detail != "" {
		detail = e.detail + ": " + detail
	}
	return &Error{msg: e.msg, detail: detail, err: e.err, origin: e.root()}
}

// WrapWithLog wraps a nested error and logs the result as an error.
func (e *Error) WrapWithLog(l *zap.Logger, err error, fields ...zap.Field) *Error {
	wrapped := e.Wrap(err)
	if l != nil {
		l.Error(e.msg, append(fields, zap.Error(wrapped))...)
	}
	return wrapped
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || e.root() == t.root()
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.As)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
