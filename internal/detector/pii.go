package detector

import (
	"context"
	"fmt"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pii"
)

// patternPII matches the built-in catalog of PII formats. Confidence is
// the maximum over matched patterns; format-exact matches score >= 0.8,
// ambiguous ones (bare IPs) <= 0.6.
type patternPII struct {
	base
	catalog   *pii.Catalog
	threshold float64
}

func newPatternPII(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	names, err := optStringSlice(opts, "patterns")
	if err != nil {
		return nil, err
	}
	catalog, err := pii.NewCatalog(names)
	if err != nil {
		return nil, err
	}
	return &patternPII{
		base:      newBase(spec, guardrail.PerfInstant),
		catalog:   catalog,
		threshold: spec.Threshold(),
	}, nil
}

func (d *patternPII) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	matches := d.catalog.Scan(content.Text)
	if len(matches) == 0 {
		return guardrail.Allow(), nil
	}

	var top pii.Match
	seen := make(map[string]bool, len(matches))
	var indicators []string
	for _, m := range matches {
		if m.Confidence > top.Confidence {
			top = m
		}
		if !seen[m.Pattern] {
			seen[m.Pattern] = true
			indicators = append(indicators, m.Pattern)
		}
	}

	r := finding(top.Confidence, d.threshold, fmt.Sprintf("%s_detected", top.Pattern), indicators)
	r.Details = map[string]any{"match_count": len(matches)}
	return r, nil
}

var _ guardrail.Guardrail = (*patternPII)(nil)
