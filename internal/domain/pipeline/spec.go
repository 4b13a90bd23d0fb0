// Package pipeline is the engine core: compilation of a declarative
// pipeline document into an executable plan, ordered dispatch with
// short-circuiting, confidence aggregation, and the atomic plan swap
// that makes reloads safe under concurrent calls.
package pipeline

import (
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// DefaultCallDeadline bounds one pipeline call when the document does
// not declare its own.
const DefaultCallDeadline = 30 * time.Second

// Defaults are the document-level knobs applied to every guardrail that
// does not override them.
type Defaults struct {
	// TimeoutMs is the per-detector invocation timeout.
	TimeoutMs int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" validate:"omitempty,min=1"`

	// FailClosed selects the on_error default: true means block.
	FailClosed *bool `yaml:"fail_closed,omitempty" json:"fail_closed,omitempty"`

	// OrderByPerformance opts into the stable faster-first sort. Off by
	// default: declaration order is the contract.
	OrderByPerformance bool `yaml:"order_by_performance,omitempty" json:"order_by_performance,omitempty"`

	// DeadlineMs bounds a whole pipeline call.
	DeadlineMs int `yaml:"deadline_ms,omitempty" json:"deadline_ms,omitempty" validate:"omitempty,min=1"`
}

// IsFailClosed reports the on_error default; unset means fail-closed.
func (d *Defaults) IsFailClosed() bool {
	return d.FailClosed == nil || *d.FailClosed
}

// CallDeadline returns the per-call deadline.
func (d *Defaults) CallDeadline() time.Duration {
	if d.DeadlineMs > 0 {
		return time.Duration(d.DeadlineMs) * time.Millisecond
	}
	return DefaultCallDeadline
}

// DetectorTimeout returns the default per-detector timeout, zero when
// the document is silent (guardrail.DefaultTimeout then applies).
func (d *Defaults) DetectorTimeout() time.Duration {
	if d.TimeoutMs > 0 {
		return time.Duration(d.TimeoutMs) * time.Millisecond
	}
	return 0
}

// Spec is the declarative description of one pipeline pair. It is what
// the config loader produces and what presets embed.
type Spec struct {
	// Name identifies the pipeline in logs and audit events.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version is bumped whenever the shipped preset changes shape.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Defaults apply to both lists.
	Defaults Defaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Input guardrails run over prompts, Output over model responses,
	// each in declaration order.
	Input  []guardrail.Spec `yaml:"input,omitempty" json:"input,omitempty" validate:"dive"`
	Output []guardrail.Spec `yaml:"output,omitempty" json:"output,omitempty" validate:"dive"`
}

// Clone returns a deep copy safe to mutate independently.
func (s *Spec) Clone() *Spec {
	out := &Spec{
		Name:     s.Name,
		Version:  s.Version,
		Defaults: s.Defaults,
	}
	if s.Defaults.FailClosed != nil {
		fc := *s.Defaults.FailClosed
		out.Defaults.FailClosed = &fc
	}
	out.Input = cloneSpecs(s.Input)
	out.Output = cloneSpecs(s.Output)
	return out
}

func cloneSpecs(in []guardrail.Spec) []guardrail.Spec {
	if in == nil {
		return nil
	}
	out := make([]guardrail.Spec, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Find returns the guardrail spec with the given name, searching both
// lists, or nil.
func (s *Spec) Find(name string) *guardrail.Spec {
	for i := range s.Input {
		if s.Input[i].Name == name {
			return &s.Input[i]
		}
	}
	for i := range s.Output {
		if s.Output[i].Name == name {
			return &s.Output[i]
		}
	}
	return nil
}
