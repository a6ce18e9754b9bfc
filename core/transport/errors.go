package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"stock-sync/core/inventory"
)

var (
	// ErrConnect means the remote could not be reached; nothing was sent.
	ErrConnect = errors.New("transport: connect failed")
	// ErrNoReply means the request may have been sent but no answer arrived.
	ErrNoReply = errors.New("transport: no reply")
	// ErrMalformed means the remote answered with something unparseable.
	ErrMalformed = errors.New("transport: malformed reply")
	// ErrNotSupported is returned by remotes lacking an operation.
	ErrNotSupported = errors.New("transport: operation not supported")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("transport: dispatcher closed")
	// ErrUnknownService is returned for a request without a registered remote.
	ErrUnknownService = errors.New("transport: unknown service")
)

// RequestError carries the request context of a failed remote call.
type RequestError struct {
	Service inventory.Service
	Op      Op
	Kind    error
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap exposes both the classification and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// AsRequestError extracts a *RequestError from err.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Classify maps err onto ErrConnect, ErrNoReply or ErrMalformed. It returns
// nil for errors that fit none of them.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConnect):
		return ErrConnect
	case errors.Is(err, ErrNoReply):
		return ErrNoReply
	case errors.Is(err, ErrMalformed):
		return ErrMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return ErrNoReply
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnect
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrNoReply
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrMalformed
	}
	return nil
}

// IsAmbiguous reports whether the remote may have applied the request
// despite the error.
func IsAmbiguous(err error) bool {
	kind := Classify(err)
	return kind == ErrNoReply || (kind == nil && err != nil)
}
