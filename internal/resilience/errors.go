// Package resilience wraps every outbound call a detector makes:
// per-call timeouts, bounded exponential retry, and a circuit breaker per
// (detector, upstream) pair.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrCircuitOpen is returned without touching the upstream while the
// breaker is open. The pipeline maps it to the guardrail's on_error
// policy like any other detector failure.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrMalformedResponse marks an upstream reply the adapter could not
// decode. Counts as a failure for breaker purposes.
var ErrMalformedResponse = errors.New("malformed upstream response")

// ConfigError marks a 4xx (other than 429) from the upstream: the request
// we built is wrong, not the upstream's health. Surfaced to the caller
// and never trips the breaker.
type ConfigError struct {
	Status int
	Msg    string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("upstream configuration error (status %d): %s", e.Status, e.Msg)
}

// UpstreamError marks a 5xx or 429 from the upstream.
type UpstreamError struct {
	Status int
	Msg    string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Msg)
}

// Trips reports whether an error counts toward opening the breaker.
// Network errors, 5xx, 429, malformed responses, and timeouts are treated
// identically; configuration errors and caller cancellation are not.
func Trips(err error) bool {
	if err == nil {
		return false
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Retryable reports whether a failed attempt may be retried. Deadline
// expiry of the surrounding call and configuration errors are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// IsNetError is used by adapters to normalize transport failures.
func IsNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}
