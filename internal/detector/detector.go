// Package detector bundles the built-in guardrail implementations:
// pattern detectors (CPU-bound, never suspend), structural filters
// (length, regex, keywords, URLs, topics), the stateful rate-limit
// guardrail, compound scoring, CEL rules, and the model-assisted family
// that delegates to a remote classifier through the resilience layer.
package detector

import (
	"log/slog"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/cel"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

// Registry type tags for every built-in detector.
const (
	TypePatternPII       = "simple_pii_detection"
	TypePatternToxicity  = "simple_toxicity_detection"
	TypePatternCode      = "simple_code_generation"
	TypePatternInjection = "simple_prompt_injection"
	TypeLength           = "length_filter"
	TypeRegex            = "regex_filter"
	TypeKeywordBlock     = "keyword_block"
	TypeKeywordList      = "keyword_list"
	TypeURLFilter        = "url_filter"
	TypeTopicFilter      = "topic_filter"
	TypeRateLimit        = "rate_limit"
	TypeCompound         = "compound_scoring"
	TypeCELRule          = "cel_rule"
	TypeModelPII         = "model_pii_detection"
	TypeModelToxicity    = "model_toxicity_detection"
	TypeModelCode        = "model_code_generation"
	TypeModelInjection   = "model_prompt_injection"
	TypeModeration       = "content_moderation"
)

// Deps carries the shared collaborators detector factories close over.
// Classifier may be nil when no provider is configured; building a
// model-assisted guardrail then fails at configuration time.
type Deps struct {
	Classifier    outbound.Classifier
	Conversations *conversation.Store
	Breakers      *resilience.BreakerSet
	Retry         resilience.RetryConfig
	Logger        *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) retry() resilience.RetryConfig {
	if d.Retry.MaxRetries == 0 && d.Retry.InitialInterval == 0 {
		return resilience.DefaultRetryConfig()
	}
	return d.Retry
}

// RegisterBuiltins installs every built-in detector factory into the
// registry. The CEL evaluator is shared across cel_rule and compound
// instances; its construction cost is paid once.
func RegisterBuiltins(reg *guardrail.Registry, deps Deps) error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return err
	}

	factories := map[string]guardrail.Factory{
		TypePatternPII:       newPatternPII,
		TypePatternToxicity:  newPatternToxicity,
		TypePatternCode:      newPatternCode,
		TypePatternInjection: newPatternInjection,
		TypeLength:           newLength,
		TypeRegex:            newRegexFilter,
		TypeKeywordBlock:     newKeywordFactory(false),
		TypeKeywordList:      newKeywordFactory(true),
		TypeURLFilter:        newURLFilter,
		TypeTopicFilter:      newTopicFilter,
		TypeRateLimit:        newRateLimitFactory(deps.Conversations),
		TypeCompound:         newCompoundFactory(evaluator),
		TypeCELRule:          newCELRuleFactory(evaluator),
		TypeModelPII:         newModelFactory(&deps, outbound.TaskPII, "pii_detected"),
		TypeModelToxicity:    newModelFactory(&deps, outbound.TaskToxicity, "toxicity_detected"),
		TypeModelCode:        newModelFactory(&deps, outbound.TaskCode, "code_generation_detected"),
		TypeModelInjection:   newModelFactory(&deps, outbound.TaskPromptInjection, "prompt_injection_detected"),
		TypeModeration:       newModelFactory(&deps, outbound.TaskModeration, "moderation_flagged"),
	}

	for tag, f := range factories {
		if err := reg.Register(tag, f); err != nil {
			return err
		}
	}
	return nil
}

// RequiresClassifier reports whether a type tag names a model-assisted
// detector that depends on the classifier provider.
func RequiresClassifier(typ string) bool {
	switch typ {
	case TypeModelPII, TypeModelToxicity, TypeModelCode, TypeModelInjection, TypeModeration:
		return true
	}
	return false
}

// base carries the identity every detector shares.
type base struct {
	name string
	typ  string
	perf guardrail.PerfClass
}

func (b base) Name() string                          { return b.name }
func (b base) Type() string                          { return b.typ }
func (b base) PerformanceClass() guardrail.PerfClass { return b.perf }

func newBase(spec guardrail.Spec, perf guardrail.PerfClass) base {
	return base{name: spec.Name, typ: spec.Type, perf: perf}
}

// riskFor grades a finding by its confidence.
func riskFor(confidence float64) guardrail.RiskLevel {
	switch {
	case confidence >= 0.9:
		return guardrail.RiskCritical
	case confidence >= 0.75:
		return guardrail.RiskHigh
	case confidence >= 0.5:
		return guardrail.RiskMedium
	case confidence > 0:
		return guardrail.RiskLow
	default:
		return guardrail.RiskNone
	}
}

// finding assembles a blocking-or-not result from a confidence score and
// the detector's threshold. Blocked implies confidence >= threshold.
func finding(confidence, threshold float64, reason string, indicators []string) guardrail.Result {
	r := guardrail.Result{
		Confidence: confidence,
		Risk:       riskFor(confidence),
		Indicators: indicators,
	}
	if confidence >= threshold {
		r.Blocked = true
		r.Reason = reason
	} else if confidence > 0 {
		r.Reason = reason
	}
	return r
}
