package httpclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// Error is a transport-level failure: the request never produced a
// response. It satisfies net.Error so callers can tell timeouts apart.
type Error struct {
	// Op is the failed step ("build request", "send", "read body").
	Op string
	// URL is the request URL.
	URL string
	// Err is the underlying error.
	Err error
	// timeout marks deadline expiry.
	timeout bool
	// invalid marks a request or response that no retry can fix.
	invalid bool
}

var _ net.Error = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("httpclient: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt ran out of time.
func (e *Error) Timeout() bool { return e.timeout }

// Temporary is part of net.Error. Invalid requests never succeed on retry.
func (e *Error) Temporary() bool { return !e.invalid }

// Transport marks the error as a transport failure for classification.
func (e *Error) Transport() bool { return !e.invalid }

// Invalid reports a malformed request or an unacceptable response.
func (e *Error) Invalid() bool { return e.invalid }

// newError wraps err, treating deadline expiry and network timeouts as
// timeouts.
func newError(op, url string, err error) *Error {
	e := &Error{Op: op, URL: url, Err: err}
	var ne net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		e.timeout = true
	case stderrors.As(err, &ne) && ne.Timeout():
		e.timeout = true
	}
	return e
}

// invalidError wraps err as a failure that must not be retried.
func invalidError(op, url string, err error) *Error {
	return &Error{Op: op, URL: url, Err: err, invalid: true}
}

// IsTimeout checks if an error is a transport timeout.
func IsTimeout(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.timeout
}

// IsTransport checks if an error is a transport failure.
func IsTransport(err error) bool {
	var e *Error
	return stderrors.As(err, &e)
}

// IsInvalid checks if an error is a malformed request or oversized
// response. Such a request never reached the remote service intact.
func IsInvalid(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.invalid
}
