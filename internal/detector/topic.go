package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// builtinTopics maps topic labels to the keyword sets that classify
// content locally. User configuration may extend or override them.
var builtinTopics = map[string][]string{
	"medical_advice":  {"diagnosis", "prescription", "dosage", "symptoms of", "should i take"},
	"legal_advice":    {"sue", "lawsuit", "legal advice", "is it legal", "contract dispute"},
	"financial":       {"invest", "stock tip", "portfolio", "crypto", "guaranteed return"},
	"politics":        {"election", "candidate", "vote for", "political party"},
	"self_harm":       {"hurt myself", "end my life", "self harm", "suicide"},
	"weapons":         {"firearm", "ammunition", "explosive", "ghost gun"},
	"gambling":        {"betting odds", "casino", "sports bet", "poker strategy"},
	"competitor_talk": {"switch to", "cheaper alternative", "competitor"},
}

// topicFilter classifies content into topic labels using keyword sets,
// then applies an allow- or deny-list over the detected labels.
type topicFilter struct {
	base
	topics    map[string][]string
	denied    []string
	allowed   []string
	threshold float64
}

func newTopicFilter(spec guardrail.Spec) (guardrail.Guardrail, error) {
	opts := spec.Options()
	denied, err := optStringSlice(opts, "denied_topics")
	if err != nil {
		return nil, err
	}
	allowed, err := optStringSlice(opts, "allowed_topics")
	if err != nil {
		return nil, err
	}
	if len(denied) == 0 && len(allowed) == 0 {
		return nil, fmt.Errorf("topic filter requires denied_topics or allowed_topics")
	}
	if len(denied) > 0 && len(allowed) > 0 {
		return nil, fmt.Errorf("topic filter: denied_topics and allowed_topics are mutually exclusive")
	}

	topics := make(map[string][]string, len(builtinTopics))
	for label, words := range builtinTopics {
		topics[label] = words
	}
	custom, err := optMap(opts, "topics")
	if err != nil {
		return nil, err
	}
	for label, v := range custom {
		words, err := anyToStringSlice(v)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", label, err)
		}
		topics[label] = words
	}

	for _, label := range append(append([]string{}, denied...), allowed...) {
		if _, ok := topics[label]; !ok {
			return nil, fmt.Errorf("topic filter references unknown topic %q", label)
		}
	}

	return &topicFilter{
		base:      newBase(spec, guardrail.PerfFast),
		topics:    topics,
		denied:    denied,
		allowed:   allowed,
		threshold: spec.Threshold(),
	}, nil
}

func (d *topicFilter) Analyze(_ context.Context, content guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	text := strings.ToLower(content.Text)

	detected := make(map[string]int)
	for label, words := range d.topics {
		for _, w := range words {
			if w != "" && strings.Contains(text, strings.ToLower(w)) {
				detected[label]++
			}
		}
	}
	if len(detected) == 0 {
		return guardrail.Allow(), nil
	}

	var offending []string
	if len(d.denied) > 0 {
		for _, label := range d.denied {
			if detected[label] > 0 {
				offending = append(offending, label)
			}
		}
	} else {
		allowedSet := make(map[string]bool, len(d.allowed))
		for _, label := range d.allowed {
			allowedSet[label] = true
		}
		for label := range detected {
			if !allowedSet[label] {
				offending = append(offending, label)
			}
		}
	}
	if len(offending) == 0 {
		return guardrail.Allow(), nil
	}

	// Confidence grows with corroborating keywords per topic.
	confidence := 0.7
	for _, label := range offending {
		if extra := detected[label] - 1; extra > 0 {
			confidence += 0.1 * float64(extra)
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	reason := "denied_topic"
	if len(d.allowed) > 0 {
		reason = "off_topic"
	}
	return finding(confidence, d.threshold, reason, offending), nil
}

func anyToStringSlice(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}

var _ guardrail.Guardrail = (*topicFilter)(nil)
