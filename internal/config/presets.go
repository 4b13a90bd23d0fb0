package config

import (
	"fmt"
	"sort"

	"github.com/virtualsteve-star/stinger-sub004/internal/detector"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
)

// Presets are the named pipeline templates shipped with the engine.
// Each call returns a fresh copy; callers may mutate freely.
var presetBuilders = map[string]func() *pipeline.Spec{
	"basic":            presetBasic,
	"customer_service": presetCustomerService,
	"medical":          presetMedical,
	"financial":        presetFinancial,
	"educational":      presetEducational,
}

// Preset returns the named embedded pipeline template.
func Preset(name string) (*pipeline.Spec, error) {
	build, ok := presetBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	return build(), nil
}

// KnownPreset reports whether name is a shipped preset.
func KnownPreset(name string) bool {
	_, ok := presetBuilders[name]
	return ok
}

// PresetNames returns the shipped preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presetBuilders))
	for name := range presetBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func threshold(v float64) *float64 { return &v }

// presetBasic is the minimal protective baseline: PII and injection
// blocking on input, code generation blocking on output.
func presetBasic() *pipeline.Spec {
	return &pipeline.Spec{
		Name:    "basic",
		Version: "1.0",
		Input: []guardrail.Spec{
			{
				Name:                "pii_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
			{
				Name:   "injection_check",
				Type:   detector.TypePatternInjection,
				Action: guardrail.ActionBlock,
			},
			{
				Name:   "toxicity_check",
				Type:   detector.TypePatternToxicity,
				Action: guardrail.ActionWarn,
			},
		},
		Output: []guardrail.Spec{
			{
				// Code syntax on the way OUT is direct evidence, not a
				// request; the lower threshold reflects that.
				Name:                "code_check",
				Type:                detector.TypePatternCode,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.7),
			},
			{
				Name:                "pii_leak_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
		},
	}
}

// presetCustomerService favors availability: rate limiting and length
// bounds up front, model moderation as warn-only enrichment.
func presetCustomerService() *pipeline.Spec {
	return &pipeline.Spec{
		Name:    "customer_service",
		Version: "1.1",
		Input: []guardrail.Spec{
			{
				Name: "rate_limiter",
				Type: detector.TypeRateLimit,
			},
			{
				Name:   "length_check",
				Type:   detector.TypeLength,
				Action: guardrail.ActionBlock,
				Config: map[string]any{"max": 8000},
			},
			{
				Name:                "pii_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
			{
				Name:   "injection_check",
				Type:   detector.TypePatternInjection,
				Action: guardrail.ActionBlock,
			},
			{
				Name:   "toxicity_check",
				Type:   detector.TypePatternToxicity,
				Action: guardrail.ActionBlock,
				Config: map[string]any{"categories": []any{"threats", "hate_speech", "harassment"}},
			},
		},
		Output: []guardrail.Spec{
			{
				Name:                "pii_leak_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
			{
				// Enrichment only: moderation outages must not cost
				// availability.
				Name:    "moderation",
				Type:    detector.TypeModeration,
				Action:  guardrail.ActionWarn,
				OnError: guardrail.OnErrorSkip,
			},
		},
	}
}

// presetMedical protects PHI aggressively: lower PII thresholds and a
// compound score over diagnosis-and-identity co-occurrence.
func presetMedical() *pipeline.Spec {
	return &pipeline.Spec{
		Name:    "medical",
		Version: "1.0",
		Input: []guardrail.Spec{
			{
				Name:                "phi_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.6),
			},
			{
				Name:   "injection_check",
				Type:   detector.TypePatternInjection,
				Action: guardrail.ActionBlock,
			},
			{
				Name:   "self_harm_check",
				Type:   detector.TypeTopicFilter,
				Action: guardrail.ActionBlock,
				Config: map[string]any{"denied_topics": []any{"self_harm"}},
			},
		},
		Output: []guardrail.Spec{
			{
				Name:                "phi_leak_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.6),
			},
			{
				Name:   "dosage_disclaimer",
				Type:   detector.TypeCompound,
				Action: guardrail.ActionBlock,
				Config: map[string]any{
					"rules": []any{
						map[string]any{
							"name":      "dosage_language",
							"certainty": 40,
							"keywords":  []any{"dosage", "mg per day", "prescribe"},
						},
						map[string]any{
							"name":      "directive_advice",
							"certainty": 40,
							"keywords":  []any{"you should take", "stop taking", "increase your dose"},
						},
					},
				},
			},
		},
	}
}

// presetFinancial guards account data and transaction fraud signals.
func presetFinancial() *pipeline.Spec {
	return &pipeline.Spec{
		Name:    "financial",
		Version: "1.0",
		Input: []guardrail.Spec{
			{
				Name:                "account_data_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.7),
				Config:              map[string]any{"patterns": []any{"ssn", "credit_card", "iban", "email", "phone"}},
			},
			{
				Name:   "injection_check",
				Type:   detector.TypePatternInjection,
				Action: guardrail.ActionBlock,
			},
			{
				Name:   "fraud_score",
				Type:   detector.TypeCompound,
				Action: guardrail.ActionBlock,
				Config: map[string]any{
					"rules": []any{
						map[string]any{
							"name":      "wire_urgency",
							"certainty": 35,
							"keywords":  []any{"wire immediately", "urgent transfer", "before close of business"},
						},
						map[string]any{
							"name":      "credential_probe",
							"certainty": 45,
							"keywords":  []any{"account password", "routing number and pin", "one-time code"},
						},
					},
				},
			},
		},
		Output: []guardrail.Spec{
			{
				Name:                "account_leak_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.7),
			},
			{
				Name:   "link_check",
				Type:   detector.TypeURLFilter,
				Action: guardrail.ActionWarn,
				Config: map[string]any{"blocked_domains": []any{"bit.ly", "tinyurl.com"}},
			},
		},
	}
}

// presetEducational tolerates code and strong language but keeps the
// safety floor: self-harm and weapons topics block, toxicity warns.
func presetEducational() *pipeline.Spec {
	return &pipeline.Spec{
		Name:    "educational",
		Version: "1.0",
		Input: []guardrail.Spec{
			{
				Name:                "pii_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
			{
				Name:   "safety_topics",
				Type:   detector.TypeTopicFilter,
				Action: guardrail.ActionBlock,
				Config: map[string]any{"denied_topics": []any{"self_harm", "weapons"}},
			},
			{
				Name:   "toxicity_check",
				Type:   detector.TypePatternToxicity,
				Action: guardrail.ActionWarn,
			},
		},
		Output: []guardrail.Spec{
			{
				Name:                "pii_leak_check",
				Type:                detector.TypePatternPII,
				Action:              guardrail.ActionBlock,
				ConfidenceThreshold: threshold(0.8),
			},
			{
				// Code is expected here; surface it without blocking.
				Name:   "code_check",
				Type:   detector.TypePatternCode,
				Action: guardrail.ActionAllow,
			},
		},
	}
}
