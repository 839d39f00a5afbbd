// Package services contains the business logic layer between the HTTP
// transport and the license subsystem. Services translate lifecycle
// state into API responses and carry request tracing through to the
// structured logs.
package services
