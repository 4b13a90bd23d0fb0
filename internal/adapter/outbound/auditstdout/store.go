// Package auditstdout writes audit events as JSON lines to standard
// output, for development and container log pipelines.
package auditstdout

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

// Store implements audit.Store over stdout.
type Store struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStore creates a stdout sink.
func NewStore() *Store {
	return &Store{w: bufio.NewWriter(os.Stdout)}
}

// Append writes events as JSON lines.
func (s *Store) Append(_ context.Context, events ...audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		if _, err := s.w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write audit event: %w", err)
		}
	}
	return s.w.Flush()
}

// Flush implements audit.Store.
func (s *Store) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close implements audit.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Compile-time interface verification.
var _ audit.Store = (*Store)(nil)
