// Package app wires the daemon together: configuration, logging,
// telemetry, the license subsystem, and the HTTP server, plus the
// graceful shutdown sequence that joins the sync worker.
package app
