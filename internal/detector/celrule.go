package detector

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/cel"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// celRule blocks when a user-supplied CEL expression evaluates to true
// against the content and conversation facts.
type celRule struct {
	base
	evaluator  *cel.Evaluator
	program    celgo.Program
	confidence float64
	reason     string
}

func newCELRuleFactory(evaluator *cel.Evaluator) guardrail.Factory {
	return func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		opts := spec.Options()
		expr := optString(opts, "expression", "")
		if expr == "" {
			return nil, fmt.Errorf("cel rule requires an expression")
		}
		if err := evaluator.ValidateExpression(expr); err != nil {
			return nil, err
		}
		prg, err := evaluator.Compile(expr)
		if err != nil {
			return nil, err
		}

		confidence, err := optFloat(opts, "confidence", 0.9)
		if err != nil {
			return nil, err
		}
		if confidence <= 0 || confidence > 1 {
			return nil, fmt.Errorf("cel rule: confidence must be in (0,1], got %v", confidence)
		}

		return &celRule{
			base:       newBase(spec, guardrail.PerfFast),
			evaluator:  evaluator,
			program:    prg,
			confidence: confidence,
			reason:     optString(opts, "reason", "rule_matched"),
		}, nil
	}
}

func (d *celRule) Analyze(_ context.Context, content guardrail.Content, cc *guardrail.CheckContext) (guardrail.Result, error) {
	hit, err := d.evaluator.Evaluate(d.program, buildEvalContext(content, cc))
	if err != nil {
		return guardrail.Result{}, err
	}
	if !hit {
		return guardrail.Allow(), nil
	}
	return guardrail.Result{
		Blocked:    true,
		Confidence: d.confidence,
		Risk:       riskFor(d.confidence),
		Reason:     d.reason,
	}, nil
}

// buildEvalContext assembles the CEL activation facts from the content
// and the per-call check context.
func buildEvalContext(content guardrail.Content, cc *guardrail.CheckContext) cel.EvaluationContext {
	ec := cel.EvaluationContext{
		Text:     content.Text,
		Metadata: content.Metadata,
	}
	if cc != nil {
		ec.Stage = string(cc.Stage)
		ec.ConversationID = cc.ConversationID()
		ec.TurnCount = len(cc.History)
		for _, t := range cc.History {
			if t.Blocked {
				ec.BlockedCount++
			}
		}
	}
	return ec
}

var _ guardrail.Guardrail = (*celRule)(nil)
