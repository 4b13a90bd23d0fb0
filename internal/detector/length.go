package detector

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// lengthFilter blocks content outside configured character bounds.
// Bounds count runes, not bytes.
type lengthFilter struct {
	base
	min int
	max int
}

func newLength(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	min, err := optInt(opts, "min", 0)
	if err != nil {
		return nil, err
	}
	max, err := optInt(opts, "max", 0)
	if err != nil {
		return nil, err
	}
	if min <= 0 && max <= 0 {
		return nil, fmt.Errorf("length filter requires min and/or max")
	}
	if max > 0 && min > max {
		return nil, fmt.Errorf("length filter: min %d exceeds max %d", min, max)
	}
	return &lengthFilter{
		base: newBase(spec, guardrail.PerfInstant),
		min:  min,
		max:  max,
	}, nil
}

func (d *lengthFilter) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	n := utf8.RuneCountInString(content.Text)
	switch {
	case d.min > 0 && n < d.min:
		return guardrail.Result{
			Blocked:    true,
			Confidence: 1.0,
			Risk:       guardrail.RiskLow,
			Reason:     "too_short",
			Details:    map[string]any{"length": n, "min": d.min},
		}, nil
	case d.max > 0 && n > d.max:
		return guardrail.Result{
			Blocked:    true,
			Confidence: 1.0,
			Risk:       guardrail.RiskLow,
			Reason:     "too_long",
			Details:    map[string]any{"length": n, "max": d.max},
		}, nil
	}
	return guardrail.Allow(), nil
}

var _ guardrail.Guardrail = (*lengthFilter)(nil)
