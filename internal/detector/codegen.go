package detector

import (
	"context"
	"regexp"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// codeCategory groups code-generation signals by how explicit they are.
// An explicit request ("write a script that...") outweighs a stray
// language name.
type codeCategory struct {
	name       string
	confidence float64
	patterns   []*regexp.Regexp
}

var codeCategories = []codeCategory{
	{
		name:       "explicit_request",
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwrite (?:me )?(?:a |an |some )?(?:script|program|function|class|code)\b`),
			regexp.MustCompile(`(?i)\bgenerate (?:the |some )?code\b`),
			regexp.MustCompile(`(?i)\bimplement (?:a |an |the )?(?:function|method|algorithm|class)\b`),
			regexp.MustCompile(`(?i)\bcode (?:snippet|example) (?:for|that)\b`),
		},
	},
	{
		name:       "syntax_tokens",
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bdef \w+\(`),
			regexp.MustCompile(`\bfunction\s+\w+\s*\(`),
			regexp.MustCompile(`\bfunc \w+\(`),
			regexp.MustCompile(`#include\s*<\w+`),
			regexp.MustCompile(`\bimport\s+[\w.]+\b`),
			regexp.MustCompile(`\bpublic (?:static )?(?:void|class)\b`),
			regexp.MustCompile("```\\w*"),
		},
	},
	{
		name:       "language_names",
		confidence: 0.5,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bin (?:python|javascript|typescript|golang|java|rust|ruby|c\+\+|bash)\b`),
			regexp.MustCompile(`(?i)\b(?:python|javascript|sql) (?:script|query|one-liner)\b`),
		},
	},
}

// patternCode flags requests for or presence of generated source code.
type patternCode struct {
	base
	threshold float64
}

func newPatternCode(spec guardrail.Spec) (guardrail.Guardrail, error) {
	return &patternCode{
		base:      newBase(spec, guardrail.PerfInstant),
		threshold: spec.Threshold(),
	}, nil
}

func (d *patternCode) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	var (
		confidence float64
		topReason  string
		indicators []string
	)
	matchedCategories := 0
	for _, cat := range codeCategories {
		hit := false
		for _, re := range cat.patterns {
			if re.MatchString(content.Text) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		matchedCategories++
		indicators = append(indicators, cat.name)
		if cat.confidence > confidence {
			confidence = cat.confidence
			topReason = "code_generation_detected"
		}
	}

	if matchedCategories == 0 {
		return guardrail.Allow(), nil
	}
	// Corroboration across categories raises confidence.
	confidence += 0.05 * float64(matchedCategories-1)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return finding(confidence, d.threshold, topReason, indicators), nil
}

var _ guardrail.Guardrail = (*patternCode)(nil)
