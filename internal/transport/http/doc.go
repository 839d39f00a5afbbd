// Package http provides the chi-based HTTP transport for the local
// license API: activation, status, deactivation, health, and the
// Prometheus metrics endpoint.
package http
