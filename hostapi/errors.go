package hostapi

import (
	"errors"
	"fmt"
)

var (
	ErrNoAttribute = errors.New("no such attribute")
	ErrReadOnly    = errors.New("attribute is read-only")
	ErrNotCallable = errors.New("value is not callable")
)

// Error is an error with an exception kind, as reported to clients, and the
// traceback of where it was raised.
type Error struct {
	Kind string
	Msg  string
	Err  error

	tb *Traceback
}

// Errorf returns an Error of the given kind, capturing the caller's stack.
func Errorf(kind, format string, p ...interface{}) *Error {
	err := fmt.Errorf(format, p...)
	return &Error{Kind: kind, Msg: err.Error(), Err: errors.Unwrap(err), tb: NewTraceback(1)}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Traceback() *Traceback {
	return e.tb
}

// ErrorKind returns the exception kind of err. Errors without one are
// reported as "Error".
func ErrorKind(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return "Error"
}

// TracebackOf returns the traceback carried by err, if any.
func TracebackOf(err error) *Traceback {
	var tbErr interface{ Traceback() *Traceback }
	if errors.As(err, &tbErr) {
		return tbErr.Traceback()
	}
	return nil
}

func attributeError(owner string, name string) error {
	return &Error{
		Kind: "AttributeError",
		Msg:  fmt.Sprintf("%s has no attribute %q", owner, name),
		Err:  ErrNoAttribute,
		tb:   NewTraceback(2),
	}
}

// Recovered returns the error for a recovered panic value. It must be
// called from the deferred function that recovered, so the traceback
// includes the panicking frames.
func Recovered(r interface{}) *Error {
	return &Error{Kind: "Panic", Msg: fmt.Sprint(r), tb: NewTraceback(2)}
}

// recoverError turns a panic in the deferring function into an error.
func recoverError(err *error) {
	if r := recover(); r != nil {
		*err = Recovered(r)
	}
}
