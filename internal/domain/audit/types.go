// Package audit defines the structured events the engine emits for every
// security decision, the sink contract they are persisted through, and
// the PII redactor that scrubs them before they reach any sink.
package audit

import (
	"context"
	"time"
)

// SchemaVersion is stamped on every event.
const SchemaVersion = "audit.v1"

// EventType enumerates the fixed set of audit event kinds.
type EventType string

const (
	// EventUserPrompt records an inspected prompt.
	EventUserPrompt EventType = "user_prompt"
	// EventLLMResponse records an inspected model response.
	EventLLMResponse EventType = "llm_response"
	// EventGuardrailDecision records one detector's verdict.
	EventGuardrailDecision EventType = "guardrail_decision"
	// EventConfigChange records a pipeline spec swap.
	EventConfigChange EventType = "config_change"
	// EventAuditEnabled records subsystem start, carrying any lost_events
	// residue from the previous shutdown.
	EventAuditEnabled EventType = "audit_enabled"
)

// Event is one audit trail entry. Immutable once emitted; the consumer
// redacts RedactedContent in place before the event reaches a sink.
type Event struct {
	Schema          string         `json:"schema"`
	Timestamp       time.Time      `json:"ts"`
	Type            EventType      `json:"event"`
	ConversationID  string         `json:"conv,omitempty"`
	FilterName      string         `json:"filter,omitempty"`
	Decision        string         `json:"decision,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	Indicators      []string       `json:"indicators,omitempty"`
	RedactedContent string         `json:"redacted,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// New stamps the schema version and timestamp on an event.
func New(t EventType) Event {
	return Event{
		Schema:    SchemaVersion,
		Timestamp: time.Now().UTC(),
		Type:      t,
	}
}

// Store is the append-only sink contract. Implementations must tolerate
// batches and are called only from the audit consumer goroutine.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	Flush(ctx context.Context) error
	Close() error
}

// Recorder is the non-owning handle pipeline code writes through.
// Record never blocks beyond the configured backpressure bound and never
// returns an error; audit must not fail a pipeline call.
type Recorder interface {
	Record(event Event)
}

// NopRecorder discards events. Used when auditing is disabled.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(Event) {}
