// Package channel opens one outbound exchange per inbound request and relays
// the upstream status, headers and body back to the caller. It tracks the
// number of channels in flight and a moving average of time-to-headers.
//
// Failures are classified into ConnectionError, UpstreamError and
// MalformedRequestError; the underlying transport error is kept unchanged.
package channel
