package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	// StateClosed is normal operation.
	StateClosed State = "closed"
	// StateOpen short-circuits calls to the on-error policy.
	StateOpen State = "open"
	// StateHalfOpen admits a single probe call.
	StateHalfOpen State = "half_open"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures within the
	// window that opens the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before admitting
	// a half-open probe.
	RecoveryTimeout time.Duration
	// Window bounds how far apart consecutive failures may be and still
	// count as one streak. Zero means failures never age out.
	Window time.Duration
}

// DefaultBreakerConfig matches the engine defaults: 5 consecutive
// failures open the breaker, one probe after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is a circuit breaker for one (detector, upstream) pair.
//
// Transitions: CLOSED -> OPEN after FailureThreshold consecutive
// failures; OPEN -> HALF_OPEN after RecoveryTimeout; HALF_OPEN -> CLOSED
// on probe success, back to OPEN on probe failure.
type Breaker struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	state        State
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	probing      bool
	clock        func() time.Time
	logger       *slog.Logger
	name         string
}

// NewBreaker creates a closed breaker. name identifies the (detector,
// upstream) pair in logs and metrics.
func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		clock:  time.Now,
		logger: logger,
		name:   name,
	}
}

// SetClock overrides the time source (tests).
func (b *Breaker) SetClock(clock func() time.Time) {
	b.mu.Lock()
	b.clock = clock
	b.mu.Unlock()
}

// Name returns the breaker identity.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the OPEN -> HALF_OPEN
// transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.probing = false
	}
	return b.state
}

// Allow reports whether a call may proceed. In HALF_OPEN exactly one
// probe is admitted; concurrent callers are rejected until the probe
// reports back.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.stateLocked()
	b.failures = 0
	b.probing = false
	b.state = StateClosed
	if prev != StateClosed {
		b.logger.Info("circuit breaker closed", "breaker", b.name)
	}
}

// RecordFailure reports a failed call. Only errors that Trips() accepts
// should be recorded.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	switch b.stateLocked() {
	case StateHalfOpen:
		// Probe failed: reopen.
		b.openLocked(now)
		return
	case StateOpen:
		return
	}

	// Age out streaks whose first failure fell outside the window.
	if b.cfg.Window > 0 && b.failures > 0 && now.Sub(b.firstFailure) > b.cfg.Window {
		b.failures = 0
	}
	if b.failures == 0 {
		b.firstFailure = now
	}
	b.failures++

	if b.failures >= b.cfg.FailureThreshold {
		b.openLocked(now)
	}
}

func (b *Breaker) openLocked(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.failures = 0
	b.probing = false
	b.logger.Warn("circuit breaker opened",
		"breaker", b.name,
		"recovery_timeout", b.cfg.RecoveryTimeout,
	)
}

// BreakerSet tracks breakers keyed by (detector, upstream) and reports
// their states to health snapshots.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *slog.Logger
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty set sharing one config.
func NewBreakerSet(cfg BreakerConfig, logger *slog.Logger) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it closed on first use.
func (s *BreakerSet) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewBreaker(key, s.cfg, s.logger)
		s.breakers[key] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (s *BreakerSet) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.breakers))
	for k, b := range s.breakers {
		out[k] = b.State()
	}
	return out
}
