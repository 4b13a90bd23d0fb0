package guardrail

import (
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
)

// CheckContext carries the per-call state detectors may consult. The
// engine builds one per pipeline call; the history slice is a snapshot
// taken at call start, so detectors within one call observe a consistent
// view even when concurrent calls append to the same conversation.
type CheckContext struct {
	// Stage the pipeline is evaluating.
	Stage Stage

	// Conversation is the multi-turn context, nil for stateless calls.
	Conversation *conversation.Conversation

	// History is the conversation's turn list as of call start.
	History []conversation.Turn
}

// ConversationID returns the conversation id or "" when stateless.
func (cc *CheckContext) ConversationID() string {
	if cc == nil || cc.Conversation == nil {
		return ""
	}
	return cc.Conversation.ID()
}
