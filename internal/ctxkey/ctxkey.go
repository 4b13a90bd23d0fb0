// Package ctxkey holds shared context key types, so packages can read
// request-scoped values without importing the HTTP adapter.
package ctxkey

// LoggerKey is the context key for the request-enriched slog.Logger.
type LoggerKey struct{}

// RequestIDKey is the context key for the request ID string.
type RequestIDKey struct{}
