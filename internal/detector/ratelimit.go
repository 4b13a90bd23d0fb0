package detector

import (
	"context"
	"fmt"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// rateLimit exposes the conversation store's per-minute and per-hour
// budgets as a guardrail. Stateless calls (no conversation) always pass.
type rateLimit struct {
	base
	store *conversation.Store
}

func newRateLimitFactory(store *conversation.Store) guardrail.Factory {
	return func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		if store == nil {
			return nil, fmt.Errorf("rate limit guardrail requires a conversation store")
		}
		return &rateLimit{
			base:  newBase(spec, guardrail.PerfInstant),
			store: store,
		}, nil
	}
}

func (d *rateLimit) Analyze(ctx context.Context, _ guardrail.Content, cc *guardrail.CheckContext) (guardrail.Result, error) {
	id := cc.ConversationID()
	if id == "" {
		return guardrail.Allow(), nil
	}

	status, err := d.store.RateCheck(ctx, id)
	if err != nil {
		return guardrail.Result{}, err
	}
	if status.OK {
		return guardrail.Allow(), nil
	}
	return guardrail.Result{
		Blocked:    true,
		Confidence: 1.0,
		Risk:       guardrail.RiskLow,
		Reason:     "rate_limited",
		Indicators: []string{status.Reason},
		Details:    map[string]any{"retry_after_ms": status.RetryAfter.Milliseconds()},
	}, nil
}

var _ guardrail.Guardrail = (*rateLimit)(nil)
