package conversation

import (
	"fmt"
	"time"
)

// SnapshotSchema versions the serialized conversation format.
const SnapshotSchema = "conversation.v1"

// Snapshot is the serializable form of a conversation. Round-trip through
// Serialize/Restore reproduces the conversation exactly, modulo the
// volatile pending-prompt stash.
type Snapshot struct {
	Schema      string    `json:"schema"`
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
	TokenBudget int       `json:"token_budget"`
	Turns       []Turn    `json:"turns"`
}

// Serialize captures the conversation state for persistence or transfer.
func (s *Store) Serialize(id string) (*Snapshot, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Schema:      SnapshotSchema,
		ID:          c.id,
		Kind:        c.kind,
		CreatedAt:   c.createdAt,
		TokenBudget: c.TokenBudget(),
		Turns:       c.snapshotTurns(),
	}, nil
}

// Restore materializes a snapshot into the store, replacing any existing
// conversation with the same id.
func (s *Store) Restore(snap *Snapshot) (*Conversation, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore conversation: nil snapshot")
	}
	if snap.Schema != "" && snap.Schema != SnapshotSchema {
		return nil, fmt.Errorf("restore conversation: unsupported schema %q", snap.Schema)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("restore conversation: missing id")
	}
	if !ValidKind(snap.Kind) {
		return nil, fmt.Errorf("restore conversation: unknown kind %q", snap.Kind)
	}
	for i, t := range snap.Turns {
		if t.Seq != i+1 {
			return nil, fmt.Errorf("restore conversation %s: turn sequence gap at index %d (seq %d)", snap.ID, i, t.Seq)
		}
	}

	budget := snap.TokenBudget
	if budget <= 0 {
		budget = s.tokenBudget
	}
	c := &Conversation{
		id:          snap.ID,
		kind:        snap.Kind,
		createdAt:   snap.CreatedAt,
		tokenBudget: budget,
		turns:       append([]Turn(nil), snap.Turns...),
		nextSeq:     len(snap.Turns),
	}

	s.mu.Lock()
	s.convs[c.id] = c
	s.mu.Unlock()
	return c, nil
}
