package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"
)

// Error is the failure value returned across the public API.
type Error struct {
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code,omitempty"`
	Retryable  bool      `json:"retryable"`
	Timestamp  time.Time `json:"timestamp"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s [%s]: %s", e.Kind, e.Endpoint, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind so callers can write
// errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates an Error with retryability taken from the kind table.
func New(kind Kind, endpoint, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Endpoint:  endpoint,
		Retryable: IsRetryableKind(kind),
		Timestamp: time.Now(),
	}
}

// FromStatus creates an Error for a non-success HTTP response.
func FromStatus(endpoint string, status int, statusText string) *Error {
	e := New(KindForStatus(status), endpoint, fmt.Sprintf("HTTP %d: %s", status, statusText))
	e.StatusCode = status
	return e
}

// --- Common constructors ---

func Network(endpoint string, cause error) *Error {
	return New(KindNetwork, endpoint, "network request failed").WithCause(cause)
}

func Timeout(endpoint string, after time.Duration) *Error {
	return New(KindTimeout, endpoint, fmt.Sprintf("request timed out after %s", after))
}

func RateLimited(endpoint string) *Error {
	return New(KindRateLimited, endpoint, "rate limit exceeded")
}

func CircuitOpen(endpoint string) *Error {
	return New(KindCircuitOpen, endpoint, "circuit breaker is open")
}

func Cancelled(endpoint string, cause error) *Error {
	return New(KindCancelled, endpoint, "request cancelled").WithCause(cause)
}

func EndpointUnknown(endpoint string) *Error {
	return New(KindEndpointUnknown, endpoint, fmt.Sprintf("no policy registered for endpoint %q", endpoint))
}

// Normalize converts any error raised below the public boundary into an
// *Error. An existing *Error is returned unchanged (its endpoint is filled
// in when empty).
func Normalize(endpoint string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Endpoint == "" {
			e.Endpoint = endpoint
		}
		return e
	}
	var ie interface{ Invalid() bool }
	if stderrors.As(err, &ie) && ie.Invalid() {
		return New(KindValidation, endpoint, "invalid request").WithCause(err)
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return Cancelled(endpoint, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return New(KindTimeout, endpoint, "request deadline exceeded").WithCause(err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(KindTimeout, endpoint, "network timeout").WithCause(err)
		}
		return Network(endpoint, err)
	}
	var te interface{ Transport() bool }
	if stderrors.As(err, &te) && te.Transport() {
		return Network(endpoint, err)
	}
	return New(KindUnknown, endpoint, err.Error()).WithCause(err)
}

// FromPanic converts a recovered panic value into an Error.
func FromPanic(endpoint string, r interface{}) *Error {
	if err, ok := r.(error); ok {
		return New(KindUnknown, endpoint, "panic during request").WithCause(err)
	}
	return New(KindUnknown, endpoint, fmt.Sprintf("panic during request: %v", r))
}

// As returns err as an *Error if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}
