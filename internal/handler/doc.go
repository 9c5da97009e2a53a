// Package handler implements the inbound HTTP handler of the proxy. It
// extracts the custom-scheme target from each request, rewrites it onto the
// destination, opens a forwarding channel and relays the result.
package handler
