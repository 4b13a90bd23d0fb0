// Package conversation maintains multi-turn context for pipeline calls:
// per-conversation history, turn counters, and the rate-limit state that
// stateful guardrails consume.
package conversation

import (
	"sync"
	"time"
)

// Kind classifies who is talking to whom.
type Kind string

const (
	KindHumanAI      Kind = "human_ai"
	KindBotToBot     Kind = "bot_to_bot"
	KindAgentToAgent Kind = "agent_to_agent"
	KindHumanToHuman Kind = "human_to_human"
)

// ValidKind reports whether k is a known conversation kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindHumanAI, KindBotToBot, KindAgentToAgent, KindHumanToHuman:
		return true
	}
	return false
}

// DefaultTokenBudget bounds the history window handed to detectors when a
// conversation does not declare its own budget.
const DefaultTokenBudget = 8192

// Turn is one completed prompt-response exchange. A turn blocked at input
// is recorded with an empty response and a block marker.
type Turn struct {
	// Seq is strictly monotonic and gap-free per conversation.
	Seq         int       `json:"seq"`
	Speaker     string    `json:"speaker,omitempty"`
	Listener    string    `json:"listener,omitempty"`
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	Blocked     bool      `json:"blocked,omitempty"`
	BlockReason string    `json:"block_reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TurnInput is the caller-supplied part of a turn; Seq and Timestamp are
// assigned on append.
type TurnInput struct {
	Speaker     string
	Listener    string
	Prompt      string
	Response    string
	Blocked     bool
	BlockReason string
}

// Conversation is one keyed multi-turn exchange. All mutation goes
// through the owning Store; reads outside a pipeline call see a
// consistent snapshot.
type Conversation struct {
	mu          sync.Mutex
	id          string
	kind        Kind
	createdAt   time.Time
	turns       []Turn
	nextSeq     int
	tokenBudget int

	// pendingPrompt is stashed by a successful input check and consumed
	// by the matching output check to complete the turn.
	pendingPrompt string
	hasPending    bool
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// Kind returns the conversation kind.
func (c *Conversation) Kind() Kind { return c.kind }

// CreatedAt returns when the conversation was opened.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// TokenBudget returns the history token budget.
func (c *Conversation) TokenBudget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenBudget
}

// Len returns the number of recorded turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// appendTurn assigns the next sequence number and records the turn.
// No turn is visible to history readers until this returns.
func (c *Conversation) appendTurn(in TurnInput, now time.Time) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	t := Turn{
		Seq:         c.nextSeq,
		Speaker:     in.Speaker,
		Listener:    in.Listener,
		Prompt:      in.Prompt,
		Response:    in.Response,
		Blocked:     in.Blocked,
		BlockReason: in.BlockReason,
		Timestamp:   now,
	}
	c.turns = append(c.turns, t)
	return t
}

// snapshotTurns returns a copy of the turn list.
func (c *Conversation) snapshotTurns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// reset clears history and counters but keeps identity and kind.
func (c *Conversation) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.nextSeq = 0
	c.pendingPrompt = ""
	c.hasPending = false
}

// SetPending stashes the prompt of an in-flight exchange.
func (c *Conversation) SetPending(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPrompt = prompt
	c.hasPending = true
}

// TakePending returns and clears the stashed prompt.
func (c *Conversation) TakePending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPending {
		return "", false
	}
	p := c.pendingPrompt
	c.pendingPrompt = ""
	c.hasPending = false
	return p, true
}

// estimateTokens is the coarse budget heuristic: one token per four
// characters, minimum one per non-empty string.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := (len(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// turnTokens estimates the token cost of a turn's text fields.
func turnTokens(t Turn) int {
	return estimateTokens(t.Prompt) + estimateTokens(t.Response)
}
