package detector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// regexFilter evaluates user-supplied patterns with allow or deny
// semantics. Deny blocks on any match; allow blocks when nothing matches.
type regexFilter struct {
	base
	patterns []*regexp.Regexp
	names    []string
	allow    bool
}

func newRegexFilter(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	raw, err := optStringSlice(opts, "patterns")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("regex filter requires at least one pattern")
	}

	mode := optString(opts, "mode", "deny")
	if mode != "deny" && mode != "allow" {
		return nil, fmt.Errorf("regex filter: mode must be allow or deny, got %q", mode)
	}
	caseSensitive := optBool(opts, "case_sensitive", false)

	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		expr := p
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("regex filter: pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &regexFilter{
		base:     newBase(spec, guardrail.PerfInstant),
		patterns: compiled,
		names:    raw,
		allow:    mode == "allow",
	}, nil
}

func (d *regexFilter) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	var matched []string
	for i, re := range d.patterns {
		if re.MatchString(content.Text) {
			matched = append(matched, d.names[i])
		}
	}

	if d.allow {
		if len(matched) > 0 {
			return guardrail.Allow(), nil
		}
		return guardrail.Result{
			Blocked:    true,
			Confidence: 1.0,
			Risk:       guardrail.RiskMedium,
			Reason:     "no_pattern_match",
		}, nil
	}

	if len(matched) == 0 {
		return guardrail.Allow(), nil
	}
	return guardrail.Result{
		Blocked:    true,
		Confidence: 1.0,
		Risk:       guardrail.RiskMedium,
		Reason:     "pattern_match",
		Indicators: matched,
	}, nil
}

var _ guardrail.Guardrail = (*regexFilter)(nil)
