package detector

import (
	"context"
	"fmt"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

// modelDetector delegates to the remote classifier through the
// resilience executor. There is no fallback to a pattern detector on
// failure; the error propagates and the engine applies the declared
// on_error policy.
type modelDetector struct {
	base
	classifier outbound.Classifier
	exec       *resilience.Executor
	task       string
	reason     string
	categories map[string]bool
	threshold  float64
}

// newModelFactory binds one classification task to a detector type tag.
func newModelFactory(deps *Deps, task, reason string) guardrail.Factory {
	return func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		if deps.Classifier == nil {
			return nil, fmt.Errorf("model-assisted guardrail requires a classifier provider")
		}

		opts := spec.Options()
		names, err := optStringSlice(opts, "categories")
		if err != nil {
			return nil, err
		}
		var categories map[string]bool
		if len(names) > 0 {
			categories = make(map[string]bool, len(names))
			for _, n := range names {
				categories[n] = true
			}
		}

		var breaker *resilience.Breaker
		if deps.Breakers != nil {
			breaker = deps.Breakers.Get(spec.Name + ":classifier")
		}
		exec := resilience.NewExecutor(spec.Timeout(0), deps.retry(), breaker, deps.logger())

		return &modelDetector{
			base:       newBase(spec, guardrail.PerfSlow),
			classifier: deps.Classifier,
			exec:       exec,
			task:       task,
			reason:     reason,
			categories: categories,
			threshold:  spec.Threshold(),
		}, nil
	}
}

func (d *modelDetector) Analyze(ctx context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	var cls *outbound.Classification
	err := d.exec.Do(ctx, func(ctx context.Context) error {
		var callErr error
		cls, callErr = d.classifier.Classify(ctx, d.task, content.Text)
		return callErr
	})
	if err != nil {
		return guardrail.Result{}, err
	}

	indicators := cls.Categories
	if d.categories != nil {
		indicators = indicators[:0:0]
		for _, c := range cls.Categories {
			if d.categories[c] {
				indicators = append(indicators, c)
			}
		}
		// A category-scoped moderation detector ignores hits outside its
		// declared categories.
		if cls.Flagged && len(indicators) == 0 && len(cls.Categories) > 0 {
			return guardrail.Allow(), nil
		}
	}

	if !cls.Flagged {
		r := guardrail.Allow()
		r.Confidence = cls.Confidence
		return r, nil
	}

	r := finding(cls.Confidence, d.threshold, d.reason, indicators)
	if cls.Detail != nil {
		r.Details = cls.Detail
	}
	return r, nil
}

var _ guardrail.Guardrail = (*modelDetector)(nil)
