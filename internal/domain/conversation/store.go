package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/ratelimit"
)

// ErrNotFound is returned for operations on unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

// RateStatus is the outcome of a rate check.
type RateStatus struct {
	OK         bool
	Reason     string
	RetryAfter time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLimiter sets the rate limiter backing rate checks.
func WithLimiter(l ratelimit.Limiter) StoreOption {
	return func(s *Store) { s.limiter = l }
}

// WithRateLimits sets the per-minute and per-hour budgets.
func WithRateLimits(perMinute, perHour int) StoreOption {
	return func(s *Store) {
		if perMinute > 0 {
			s.minuteCfg.Rate = perMinute
			s.minuteCfg.Burst = perMinute
		}
		if perHour > 0 {
			s.hourCfg.Rate = perHour
			s.hourCfg.Burst = perHour
		}
	}
}

// WithTokenBudget sets the default history token budget for newly opened
// conversations.
func WithTokenBudget(budget int) StoreOption {
	return func(s *Store) {
		if budget > 0 {
			s.tokenBudget = budget
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.clock = clock }
}

// Store maintains the keyed set of conversations. It is shared across
// concurrent pipeline calls; state is partitioned by conversation id and
// writes are serialized per conversation.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*Conversation

	limiter     ratelimit.Limiter
	minuteCfg   ratelimit.Config
	hourCfg     ratelimit.Config
	tokenBudget int
	clock       func() time.Time
}

// NewStore creates a conversation store. Without WithLimiter, rate checks
// always pass.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		convs:       make(map[string]*Conversation),
		minuteCfg:   ratelimit.Config{Rate: 60, Burst: 60, Period: time.Minute},
		hourCfg:     ratelimit.Config{Rate: 1000, Burst: 1000, Period: time.Hour},
		tokenBudget: DefaultTokenBudget,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a new conversation of the given kind and returns it.
func (s *Store) Open(kind Kind) (*Conversation, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("open conversation: unknown kind %q", kind)
	}
	c := &Conversation{
		id:          uuid.New().String(),
		kind:        kind,
		createdAt:   s.clock().UTC(),
		tokenBudget: s.tokenBudget,
	}
	s.mu.Lock()
	s.convs[c.id] = c
	s.mu.Unlock()
	return c, nil
}

// Get returns the conversation for id.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	c, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// AppendTurn records a completed exchange (or a blocked prompt) on the
// conversation. The assigned turn is returned; sequence numbers are
// strictly monotonic and gap-free.
func (s *Store) AppendTurn(id string, in TurnInput) (Turn, error) {
	c, err := s.Get(id)
	if err != nil {
		return Turn{}, err
	}
	return c.appendTurn(in, s.clock().UTC()), nil
}

// History returns the window of turns selected by the strategy. The
// result is a copy; appends from concurrent calls do not mutate it.
func (s *Store) History(id string, w Window) ([]Turn, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return selectTurns(c.snapshotTurns(), w, c.TokenBudget()), nil
}

// RateCheck consumes one slot from the conversation's per-minute and
// per-hour buckets. Independent from pipeline block semantics, but the
// rate_limit guardrail exposes it uniformly as a detector.
func (s *Store) RateCheck(ctx context.Context, id string) (RateStatus, error) {
	if _, err := s.Get(id); err != nil {
		return RateStatus{}, err
	}
	if s.limiter == nil {
		return RateStatus{OK: true}, nil
	}

	minute, err := s.limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.WindowMinute, id), s.minuteCfg)
	if err != nil {
		return RateStatus{}, fmt.Errorf("rate check (minute): %w", err)
	}
	if !minute.Allowed {
		return RateStatus{Reason: "per_minute_limit", RetryAfter: minute.RetryAfter}, nil
	}

	hour, err := s.limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.WindowHour, id), s.hourCfg)
	if err != nil {
		return RateStatus{}, fmt.Errorf("rate check (hour): %w", err)
	}
	if !hour.Allowed {
		return RateStatus{Reason: "per_hour_limit", RetryAfter: hour.RetryAfter}, nil
	}

	return RateStatus{OK: true}, nil
}

// Reset clears a conversation's history and counters in place.
func (s *Store) Reset(id string) error {
	c, err := s.Get(id)
	if err != nil {
		return err
	}
	c.reset()
	return nil
}

// Remove destroys a conversation. The application owns the lifetime; an
// active pipeline call holding the pointer finishes against its snapshot.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.convs, id)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// IDs returns the ids of all live conversations.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	return ids
}
