// Package service hosts the long-running application services composed
// on top of the domain packages: the async audit consumer and the
// health/stats snapshotter.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

// AuditService is the async audit subsystem: a bounded multi-producer
// single-consumer buffer in front of a background worker that redacts,
// batches, and appends events to the sink. Enqueue never blocks the
// pipeline; at capacity the policy is drop-oldest with a counter.
type AuditService struct {
	store    audit.Store
	redactor *audit.Redactor
	events   chan audit.Event
	logger   *slog.Logger

	batchSize     int
	flushInterval time.Duration
	capacity      int
	lostPath      string

	dropCount   atomic.Int64
	lastWarning atomic.Int64

	wg      sync.WaitGroup
	stopped atomic.Bool
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of events batched before a sink write.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets the maximum age of a pending batch.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithBufferCapacity sets the in-memory event buffer size.
func WithBufferCapacity(n int) AuditOption {
	return func(s *AuditService) {
		if n > 0 {
			s.capacity = n
			s.events = make(chan audit.Event, n)
		}
	}
}

// WithLostEventsPath sets the sidecar file where residue from an unclean
// or lossy shutdown is recorded and re-surfaced on the next start.
func WithLostEventsPath(path string) AuditOption {
	return func(s *AuditService) { s.lostPath = path }
}

// NewAuditService creates the subsystem around a sink. Call Start to
// begin consuming and Stop for a bounded flush on shutdown.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	const defaultCapacity = 1000
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuditService{
		store:         store,
		redactor:      audit.NewRedactor(),
		events:        make(chan audit.Event, defaultCapacity),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		capacity:      defaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the consumer and emits the audit_enabled event,
// carrying any lost_events residue from the previous run.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)

	enabled := audit.New(audit.EventAuditEnabled)
	if lost := s.takeLostEvents(); lost > 0 {
		enabled.Metadata = map[string]any{"lost_events": lost}
	}
	s.Record(enabled)
}

// Record implements audit.Recorder. Wait-free up to buffer capacity; at
// capacity the oldest buffered event is discarded to admit the new one.
func (s *AuditService) Record(event audit.Event) {
	if s.stopped.Load() {
		return
	}
	s.maybeWarnDepth()

	for {
		select {
		case s.events <- event:
			return
		default:
		}
		// Full: evict the oldest and retry. The consumer may race us for
		// the eviction; either way one slot frees up.
		select {
		case old := <-s.events:
			s.noteDrop(old)
		default:
		}
	}
}

func (s *AuditService) noteDrop(event audit.Event) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("audit event dropped",
		"event", event.Type,
		"conversation", event.ConversationID,
		"total_drops", drops,
	)
}

// maybeWarnDepth logs when the buffer passes 80% full, at most once per
// second.
func (s *AuditService) maybeWarnDepth() {
	depth := len(s.events)
	if depth < s.capacity*80/100 {
		return
	}
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("audit buffer approaching capacity",
			"depth", depth,
			"capacity", s.capacity,
		)
	}
}

// DroppedEvents returns the total number of discarded events.
func (s *AuditService) DroppedEvents() int64 { return s.dropCount.Load() }

// BufferDepth returns the current buffer occupancy.
func (s *AuditService) BufferDepth() int { return len(s.events) }

// BufferCapacity returns the buffer size.
func (s *AuditService) BufferCapacity() int { return s.capacity }

// Stop closes the buffer and waits for the consumer to flush. The final
// flush is bounded; whatever could not be persisted is recorded in the
// lost-events sidecar together with the drop count.
func (s *AuditService) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.events)
	s.wg.Wait()
}

func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Event, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				s.finalFlush(batch)
				return
			}
			s.redactor.RedactEvent(&event)
			batch = append(batch, event)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever producers already enqueued, then flush with
			// a bounded deadline.
			for {
				select {
				case event, ok := <-s.events:
					if !ok {
						s.finalFlush(batch)
						return
					}
					s.redactor.RedactEvent(&event)
					batch = append(batch, event)
					continue
				default:
				}
				break
			}
			s.finalFlush(batch)
			return
		}
	}
}

// flush appends a batch to the sink, retrying with exponential backoff.
// Sink failure is never propagated to the pipeline; after the retry
// budget the batch is counted as dropped.
func (s *AuditService) flush(ctx context.Context, batch []audit.Event) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(func() error {
		return s.store.Append(ctx, batch...)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		s.dropCount.Add(int64(len(batch)))
		s.logger.Error("audit batch lost after retries",
			"error", err,
			"count", len(batch),
		)
	}
}

// finalFlush is the shutdown path: one bounded attempt batch write, then
// sidecar accounting for anything that never made it to the sink.
func (s *AuditService) finalFlush(batch []audit.Event) {
	lost := s.dropCount.Load()
	if len(batch) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Append(ctx, batch...); err != nil {
			lost += int64(len(batch))
			s.logger.Error("audit final flush failed", "error", err, "count", len(batch))
		}
		cancel()
	}
	if err := s.store.Flush(context.Background()); err != nil {
		s.logger.Error("audit sink flush failed", "error", err)
	}
	s.writeLostEvents(lost)
}

// writeLostEvents persists the residue counter for the next start.
func (s *AuditService) writeLostEvents(lost int64) {
	if s.lostPath == "" || lost == 0 {
		return
	}
	data, _ := json.Marshal(map[string]int64{"lost_events": lost})
	if err := os.WriteFile(s.lostPath, data, 0o600); err != nil {
		s.logger.Error("failed to write lost-events sidecar", "path", s.lostPath, "error", err)
	}
}

// takeLostEvents reads and removes the sidecar, returning the residue.
func (s *AuditService) takeLostEvents() int64 {
	if s.lostPath == "" {
		return 0
	}
	data, err := os.ReadFile(s.lostPath)
	if err != nil {
		return 0
	}
	defer func() { _ = os.Remove(s.lostPath) }()

	var payload map[string]int64
	if err := json.Unmarshal(data, &payload); err != nil {
		// Tolerate a bare integer written by hand.
		n, convErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if convErr != nil {
			s.logger.Warn("unreadable lost-events sidecar", "path", s.lostPath, "error", err)
			return 0
		}
		return n
	}
	return payload["lost_events"]
}

// Compile-time interface verification.
var _ audit.Recorder = (*AuditService)(nil)
