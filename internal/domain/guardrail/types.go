// Package guardrail contains the detector contract shared by every
// content-inspection unit in the engine: the Guardrail interface, the
// Result every analysis produces, and the declarative Spec a detector
// is configured from.
package guardrail

import (
	"time"
)

// RiskLevel grades the severity of a finding.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Action is the per-guardrail policy applied when a detector fires.
type Action string

const (
	// ActionBlock short-circuits the pipeline when the detector fires.
	ActionBlock Action = "block"
	// ActionWarn records the finding and continues evaluation.
	ActionWarn Action = "warn"
	// ActionAllow runs the detector in monitor mode; it can never block.
	ActionAllow Action = "allow"
)

// Stage identifies which pipeline a guardrail participates in.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
	StageBoth   Stage = "both"
)

// AppliesTo reports whether a guardrail declared for s runs at stage at.
func (s Stage) AppliesTo(at Stage) bool {
	return s == StageBoth || s == at
}

// OnError is the per-guardrail policy applied when the detector itself fails.
type OnError string

const (
	OnErrorBlock OnError = "block"
	OnErrorWarn  OnError = "warn"
	OnErrorAllow OnError = "allow"
	OnErrorSkip  OnError = "skip"
)

// PerfClass is the latency band a detector declares. The declaration is
// asserted by performance tests and consumed by the engine's optional
// ordering heuristic.
type PerfClass string

const (
	// PerfInstant is <10ms (pure pattern matching).
	PerfInstant PerfClass = "instant"
	// PerfFast is 10-100ms (larger pattern sets, file-backed lists).
	PerfFast PerfClass = "fast"
	// PerfModerate is 100ms-1s (local models, cached remote calls).
	PerfModerate PerfClass = "moderate"
	// PerfSlow is >1s (remote classifier round trips).
	PerfSlow PerfClass = "slow"
)

// rank orders performance classes for the opt-in stable sort.
func (p PerfClass) rank() int {
	switch p {
	case PerfInstant:
		return 0
	case PerfFast:
		return 1
	case PerfModerate:
		return 2
	case PerfSlow:
		return 3
	default:
		return 4
	}
}

// Faster reports whether p is a strictly faster class than other.
func (p PerfClass) Faster(other PerfClass) bool {
	return p.rank() < other.rank()
}

// Content is the unit of text a pipeline pass inspects. It is immutable
// within a single pass; the metadata bag carries role, language, and
// source-turn hints for detectors that want them.
type Content struct {
	Text     string
	Metadata map[string]string
}

// Result is produced by every detector invocation.
//
// Invariant: Blocked implies Confidence >= the detector's threshold and
// Risk != RiskNone. A warn/allow result may still carry indicators.
type Result struct {
	// Blocked is the detector's own verdict; the engine decides whether it
	// becomes the pipeline verdict based on the declared Action.
	Blocked bool
	// Confidence is in [0,1].
	Confidence float64
	// Risk grades the finding.
	Risk RiskLevel
	// Reason is a short machine-stable string (e.g. "ssn_detected").
	Reason string
	// Indicators lists matched patterns or category labels.
	Indicators []string
	// Details is an opaque diagnostics map; never consulted by the engine.
	Details map[string]any
	// GuardrailName and GuardrailType identify the producing detector.
	GuardrailName string
	GuardrailType string
	// Latency is the wall-clock cost of the analysis, set by the engine.
	Latency time.Duration
}

// Allow returns a non-blocking Result with no findings.
func Allow() Result {
	return Result{Risk: RiskNone}
}
