package detector

import (
	"context"
	"regexp"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// injectionSignal is one prompt-injection fingerprint.
type injectionSignal struct {
	name       string
	confidence float64
	re         *regexp.Regexp
}

var injectionSignals = []injectionSignal{
	{
		name:       "instruction_override",
		confidence: 0.9,
		re:         regexp.MustCompile(`(?i)\b(?:ignore|disregard|forget) (?:all |any |the )?(?:previous|prior|above|earlier) (?:instructions?|prompts?|rules?|context)\b`),
	},
	{
		name:       "system_prompt_probe",
		confidence: 0.85,
		re:         regexp.MustCompile(`(?i)\b(?:reveal|show|print|repeat|leak) (?:your |the )?(?:system prompt|initial instructions|hidden instructions)\b`),
	},
	{
		name:       "role_reassignment",
		confidence: 0.8,
		re:         regexp.MustCompile(`(?i)\byou are (?:now|no longer) (?:a |an |the )?\w+`),
	},
	{
		name:       "jailbreak_persona",
		confidence: 0.85,
		re:         regexp.MustCompile(`(?i)\b(?:jailbreak|dan mode|developer mode|do anything now)\b`),
	},
	{
		name:       "guard_disable",
		confidence: 0.85,
		re:         regexp.MustCompile(`(?i)\b(?:disable|bypass|turn off) (?:your |the |all )?(?:safety|guardrails?|filters?|restrictions?)\b`),
	},
	{
		name:       "delimiter_escape",
		confidence: 0.6,
		re:         regexp.MustCompile(`(?i)(?:^|\n)\s*(?:system|assistant)\s*:`),
	},
}

// patternInjection flags prompt-injection attempts with a fingerprint
// set. A remote classifier variant exists for subtler attacks; the two
// are deployed together when defense in depth is wanted.
type patternInjection struct {
	base
	threshold float64
}

func newPatternInjection(spec guardrail.Spec) (guardrail.Guardrail, error) {
	return &patternInjection{
		base:      newBase(spec, guardrail.PerfInstant),
		threshold: spec.Threshold(),
	}, nil
}

func (d *patternInjection) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	var (
		confidence float64
		indicators []string
	)
	for _, sig := range injectionSignals {
		if !sig.re.MatchString(content.Text) {
			continue
		}
		indicators = append(indicators, sig.name)
		if sig.confidence > confidence {
			confidence = sig.confidence
		}
	}

	if len(indicators) == 0 {
		return guardrail.Allow(), nil
	}
	confidence += 0.05 * float64(len(indicators)-1)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return finding(confidence, d.threshold, "prompt_injection_detected", indicators), nil
}

var _ guardrail.Guardrail = (*patternInjection)(nil)
