package auditfile

import (
	"sync"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

// ring is a fixed-capacity buffer of recent events, newest-first reads.
type ring struct {
	mu      sync.RWMutex
	entries []audit.Event
	size    int
	head    int
	count   int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1000
	}
	return &ring{entries: make([]audit.Event, size), size: size}
}

// add overwrites the oldest entry when full.
func (r *ring) add(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// last returns up to n entries, newest first.
func (r *ring) last(n int) []audit.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]audit.Event, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		out[i] = r.entries[idx]
	}
	return out
}
