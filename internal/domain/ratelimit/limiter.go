package ratelimit

import "context"

// Limiter is the interface for rate limiting operations.
//
// Implementations should use GCRA (Generic Cell Rate Algorithm) for
// smooth rate limiting without burst issues at window boundaries; it
// spreads requests evenly over time instead of resetting counters at
// fixed window edges.
//
// The interface is storage-agnostic. The in-memory implementation lives
// in the memory adapter; the conversation store holds one limiter and
// checks the per-minute and per-hour windows on every rate check.
type Limiter interface {
	// Allow checks if a request identified by key is allowed under the
	// given config. It atomically advances the limiter state and returns
	// the result. If the request is not allowed, RetryAfter in the result
	// indicates when the next request will be.
	Allow(ctx context.Context, key string, config Config) (Result, error)
}
