package guardrail

import (
	"time"
)

// DefaultTimeout bounds a single detector invocation when the spec does
// not declare one.
const DefaultTimeout = 5 * time.Second

// DefaultConfidenceThreshold is applied when a spec omits the threshold.
const DefaultConfidenceThreshold = 0.8

// Spec is the declarative configuration of a single detector instance.
// It is what appears as one entry of a pipeline's input or output list.
type Spec struct {
	// Name is the stable identifier reported in aggregate results and
	// audit events.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type selects the factory in the detector registry.
	Type string `yaml:"type" json:"type" validate:"required"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Stage the guardrail participates in. Defaults to the stage of the
	// list it is declared under.
	Stage Stage `yaml:"stage,omitempty" json:"stage,omitempty" validate:"omitempty,oneof=input output both"`

	// Action taken when the detector fires. Defaults to block.
	Action Action `yaml:"action,omitempty" json:"action,omitempty" validate:"omitempty,oneof=block warn allow"`

	// OnError policy when the detector itself fails. Defaults to block
	// (fail-closed) unless the pipeline declares otherwise.
	OnError OnError `yaml:"on_error,omitempty" json:"on_error,omitempty" validate:"omitempty,oneof=block warn allow skip"`

	// TimeoutMs bounds one invocation of the detector.
	TimeoutMs int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" validate:"omitempty,min=1"`

	// ConfidenceThreshold is the minimum confidence for a block to stand.
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty" validate:"omitempty,min=0,max=1"`

	// Config is the detector-specific sub-map.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	// Extra captures flat detector options declared next to the standard
	// fields. Kept for back-compat with older documents that predate the
	// nested config sub-map.
	Extra map[string]any `yaml:",inline" json:"-"`
}

// IsEnabled reports whether the guardrail should be built into the plan.
func (s *Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// EffectiveAction returns the declared action, defaulting to block.
func (s *Spec) EffectiveAction() Action {
	if s.Action == "" {
		return ActionBlock
	}
	return s.Action
}

// EffectiveOnError returns the declared on-error policy. failClosed
// selects the default when the spec is silent.
func (s *Spec) EffectiveOnError(failClosed bool) OnError {
	if s.OnError != "" {
		return s.OnError
	}
	if failClosed {
		return OnErrorBlock
	}
	return OnErrorWarn
}

// Timeout returns the declared per-invocation timeout, or fallback when
// unset, or DefaultTimeout when both are unset.
func (s *Spec) Timeout(fallback time.Duration) time.Duration {
	if s.TimeoutMs > 0 {
		return time.Duration(s.TimeoutMs) * time.Millisecond
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeout
}

// Threshold returns the confidence threshold, defaulting to
// DefaultConfidenceThreshold.
func (s *Spec) Threshold() float64 {
	if s.ConfidenceThreshold != nil {
		return *s.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

// Options merges the detector-specific configuration: flat keys first
// (back-compat), then the nested config sub-map on top. The returned map
// is a copy; mutating it does not affect the spec.
func (s *Spec) Options() map[string]any {
	merged := make(map[string]any, len(s.Extra)+len(s.Config))
	for k, v := range s.Extra {
		merged[k] = v
	}
	for k, v := range s.Config {
		merged[k] = v
	}
	return merged
}

// Clone returns a deep-enough copy for plan compilation: scalar fields by
// value, maps re-allocated one level deep.
func (s *Spec) Clone() Spec {
	out := *s
	if s.Config != nil {
		out.Config = make(map[string]any, len(s.Config))
		for k, v := range s.Config {
			out.Config[k] = v
		}
	}
	if s.Extra != nil {
		out.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	if s.Enabled != nil {
		e := *s.Enabled
		out.Enabled = &e
	}
	if s.ConfidenceThreshold != nil {
		t := *s.ConfidenceThreshold
		out.ConfidenceThreshold = &t
	}
	return out
}
