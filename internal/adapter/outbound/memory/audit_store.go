package memory

import (
	"context"
	"sync"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

// AuditStore keeps audit events in memory. Used by tests and by the
// "memory" audit output for ephemeral deployments.
type AuditStore struct {
	mu     sync.Mutex
	events []audit.Event
	max    int
}

// NewAuditStore creates a store capped at max events (0 = unbounded).
func NewAuditStore(max int) *AuditStore {
	return &AuditStore{max: max}
}

// Append implements audit.Store.
func (s *AuditStore) Append(_ context.Context, events ...audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	if s.max > 0 && len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// Flush implements audit.Store.
func (s *AuditStore) Flush(context.Context) error { return nil }

// Close implements audit.Store.
func (s *AuditStore) Close() error { return nil }

// Events returns a copy of everything appended so far.
func (s *AuditStore) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *AuditStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
