package detector

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/cel"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// Default compound bands. A total of 0-20 allows, 21-60 warns, 61-100
// blocks; totals saturate at 100.
const (
	defaultAllowMax = 20
	defaultWarnMax  = 60
	maxCertainty    = 100
)

// compoundRule is one child rule. Exactly one condition form is set.
type compoundRule struct {
	name      string
	certainty int
	pattern   *regexp.Regexp
	keywords  []string
	program   celgo.Program
}

// compoundScoring composes child rules; each matching rule contributes
// an additive certainty and the saturated total maps to allow, warn, or
// block. The confidence threshold declared on the spec does not apply;
// the bands are the threshold.
type compoundScoring struct {
	base
	rules     []compoundRule
	evaluator *cel.Evaluator
	allowMax  int
	warnMax   int
}

func newCompoundFactory(evaluator *cel.Evaluator) guardrail.Factory {
	return func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		opts := spec.Options()
		rawRules, err := optMapSlice(opts, "rules")
		if err != nil {
			return nil, err
		}
		if len(rawRules) == 0 {
			return nil, fmt.Errorf("compound scoring requires at least one rule")
		}

		rules := make([]compoundRule, 0, len(rawRules))
		for i, raw := range rawRules {
			rule, err := parseCompoundRule(raw, evaluator)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			rules = append(rules, rule)
		}

		allowMax, warnMax := defaultAllowMax, defaultWarnMax
		if th, err := optMap(opts, "thresholds"); err != nil {
			return nil, err
		} else if th != nil {
			if allowMax, err = optInt(th, "allow", defaultAllowMax); err != nil {
				return nil, err
			}
			if warnMax, err = optInt(th, "warn", defaultWarnMax); err != nil {
				return nil, err
			}
		}
		if allowMax < 0 || warnMax <= allowMax || warnMax >= maxCertainty {
			return nil, fmt.Errorf("compound thresholds: need 0 <= allow < warn < %d, got allow=%d warn=%d", maxCertainty, allowMax, warnMax)
		}

		return &compoundScoring{
			base:      newBase(spec, guardrail.PerfFast),
			rules:     rules,
			evaluator: evaluator,
			allowMax:  allowMax,
			warnMax:   warnMax,
		}, nil
	}
}

func parseCompoundRule(raw map[string]any, evaluator *cel.Evaluator) (compoundRule, error) {
	rule := compoundRule{name: optString(raw, "name", "")}
	if rule.name == "" {
		return rule, fmt.Errorf("missing name")
	}

	certainty, err := optInt(raw, "certainty", 0)
	if err != nil {
		return rule, err
	}
	if certainty < 1 || certainty > maxCertainty {
		return rule, fmt.Errorf("certainty must be in [1,%d], got %d", maxCertainty, certainty)
	}
	rule.certainty = certainty

	conditions := 0
	if p := optString(raw, "pattern", ""); p != "" {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return rule, fmt.Errorf("pattern %q: %w", p, err)
		}
		rule.pattern = re
		conditions++
	}
	if kws, err := optStringSlice(raw, "keywords"); err != nil {
		return rule, err
	} else if len(kws) > 0 {
		rule.keywords = make([]string, len(kws))
		for i, k := range kws {
			rule.keywords[i] = strings.ToLower(k)
		}
		conditions++
	}
	if expr := optString(raw, "expression", ""); expr != "" {
		if err := evaluator.ValidateExpression(expr); err != nil {
			return rule, err
		}
		prg, err := evaluator.Compile(expr)
		if err != nil {
			return rule, err
		}
		rule.program = prg
		conditions++
	}

	if conditions != 1 {
		return rule, fmt.Errorf("exactly one of pattern, keywords, expression is required")
	}
	return rule, nil
}

func (d *compoundScoring) Analyze(_ context.Context, content guardrail.Content, cc *guardrail.CheckContext) (guardrail.Result, error) {
	total := 0
	var matched []string
	for _, rule := range d.rules {
		hit, err := d.ruleMatches(rule, content, cc)
		if err != nil {
			return guardrail.Result{}, fmt.Errorf("rule %q: %w", rule.name, err)
		}
		if !hit {
			continue
		}
		matched = append(matched, rule.name)
		total += rule.certainty
		if total >= maxCertainty {
			total = maxCertainty
			break
		}
	}

	confidence := float64(total) / maxCertainty
	details := map[string]any{"certainty_total": total}

	switch {
	case total <= d.allowMax:
		r := guardrail.Allow()
		if total > 0 {
			r.Confidence = confidence
			r.Risk = guardrail.RiskLow
			r.Indicators = matched
			r.Details = details
		}
		return r, nil
	case total <= d.warnMax:
		return guardrail.Result{
			Confidence: confidence,
			Risk:       guardrail.RiskMedium,
			Reason:     "compound_warning",
			Indicators: matched,
			Details:    details,
		}, nil
	default:
		return guardrail.Result{
			Blocked:    true,
			Confidence: confidence,
			Risk:       riskFor(confidence),
			Reason:     "compound_threshold_exceeded",
			Indicators: matched,
			Details:    details,
		}, nil
	}
}

func (d *compoundScoring) ruleMatches(rule compoundRule, content guardrail.Content, cc *guardrail.CheckContext) (bool, error) {
	switch {
	case rule.pattern != nil:
		return rule.pattern.MatchString(content.Text), nil
	case len(rule.keywords) > 0:
		text := strings.ToLower(content.Text)
		for _, k := range rule.keywords {
			if strings.Contains(text, k) {
				return true, nil
			}
		}
		return false, nil
	default:
		return d.evaluator.Evaluate(rule.program, buildEvalContext(content, cc))
	}
}

var _ guardrail.Guardrail = (*compoundScoring)(nil)
