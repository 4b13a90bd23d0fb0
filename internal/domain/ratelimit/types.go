// Package ratelimit provides rate limiting domain types for conversation
// request shaping.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the rate limiting parameters for one window.
type Config struct {
	// Rate is the number of allowed events in the period.
	Rate int

	// Burst is the maximum number of events that can occur at once.
	// Burst should be >= Rate for meaningful operation.
	Burst int

	// Period is the time window for the rate limit.
	Period time.Duration
}

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Remaining is the number of remaining requests in the current window.
	Remaining int

	// RetryAfter is the duration until the next request will be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the duration until the rate limit resets.
	ResetAfter time.Duration
}

// Window identifies which rate window a key belongs to.
type Window string

const (
	// WindowMinute is the per-minute conversation budget.
	WindowMinute Window = "minute"

	// WindowHour is the per-hour conversation budget.
	WindowHour Window = "hour"
)

const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{window}:{conversation-id}"
func FormatKey(window Window, conversationID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, window, conversationID)
}
