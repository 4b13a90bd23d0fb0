package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retry loop around one outbound call.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retrying.
	MaxRetries int
	// InitialInterval seeds the exponential backoff.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff wait.
	MaxInterval time.Duration
}

// DefaultRetryConfig retries twice with a 100ms seed.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Executor composes timeout, retry, and circuit breaking around an
// outbound operation. One executor serves one (detector, upstream) pair;
// the breaker is shared through the BreakerSet.
type Executor struct {
	timeout time.Duration
	retry   RetryConfig
	breaker *Breaker
	logger  *slog.Logger
}

// NewExecutor creates an executor. timeout bounds each individual
// attempt; the caller's context deadline bounds the whole call and always
// wins when shorter.
func NewExecutor(timeout time.Duration, retry RetryConfig, breaker *Breaker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		timeout: timeout,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}
}

// Breaker exposes the underlying breaker for state reporting.
func (e *Executor) Breaker() *Breaker { return e.breaker }

// Do runs op with per-attempt timeout, bounded exponential retry, and the
// circuit breaker. The breaker is consulted once per Do call: when open,
// ErrCircuitOpen is returned without invoking op, and the whole call
// (including retries) is recorded as a single success or failure.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if e.breaker != nil && !e.breaker.Allow() {
		return ErrCircuitOpen
	}

	err := e.doWithRetry(ctx, op)

	if e.breaker != nil {
		if err == nil {
			e.breaker.RecordSuccess()
		} else if Trips(err) {
			e.breaker.RecordFailure()
		}
	}
	return err
}

func (e *Executor) doWithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	if e.retry.InitialInterval > 0 {
		bo.InitialInterval = e.retry.InitialInterval
	}
	if e.retry.MaxInterval > 0 {
		bo.MaxInterval = e.retry.MaxInterval
	}
	bo.Reset()

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = e.attempt(ctx, op)
		if lastErr == nil {
			return nil
		}
		if attempt >= e.retry.MaxRetries || !Retryable(lastErr) {
			return lastErr
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return lastErr
		}
		// Retries are pointless when the pipeline deadline lands inside
		// the backoff interval.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			return lastErr
		}

		e.logger.Debug("retrying outbound call",
			"attempt", attempt+1,
			"wait", wait,
			"error", lastErr,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// attempt runs op once under the per-attempt timeout.
func (e *Executor) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if e.timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return op(attemptCtx)
}
