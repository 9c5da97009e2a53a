// Package httpserver runs the proxy and admin listeners with validated
// addresses and graceful shutdown.
package httpserver
