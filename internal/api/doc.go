// Package api implements the read-only HTTP interface for inspecting
// studies and their trials while a sweep runs or after it finishes. It
// handles routing, request validation, response formatting, and the
// mapping of storage errors to HTTP status codes.
package api
