package channel

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// ConnectionError means the destination could not be reached at all.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// UpstreamError means the destination failed before response headers arrived.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedRequestError is returned before any fetch is attempted.
type MalformedRequestError struct {
	Target string
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return "malformed request: " + e.Reason
}

func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

func IsUpstreamError(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}

func IsMalformedRequest(err error) bool {
	var target *MalformedRequestError
	return errors.As(err, &target)
}

// classify maps a round trip error onto the taxonomy. Cancellation by the
// caller is returned as is.
func classify(ctx context.Context, destination string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnectionError{URL: destination, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &ConnectionError{URL: destination, Err: err}
	}

	return &UpstreamError{URL: destination, Err: err}
}
