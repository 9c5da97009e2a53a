// Package healthcheck periodically probes the destination host and keeps the
// last result for the admin /health endpoint. Probing never affects how
// requests are forwarded.
package healthcheck
