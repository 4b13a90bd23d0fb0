package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// bound is one guardrail compiled into a plan: the constructed detector
// plus its resolved policy knobs.
type bound struct {
	impl    guardrail.Guardrail
	name    string
	typ     string
	action  guardrail.Action
	onError guardrail.OnError
	timeout time.Duration
}

// Plan is an immutable, fully-constructed pipeline pair. The engine
// holds the active plan behind an atomic pointer; in-flight calls keep
// using the plan they started with.
type Plan struct {
	spec   *Spec
	input  []bound
	output []bound
}

// Compile validates and constructs every enabled guardrail in the spec.
// Construction failures surface here, before the plan can ever be
// swapped in.
func Compile(spec *Spec, reg *guardrail.Registry) (*Plan, error) {
	if spec == nil {
		return nil, fmt.Errorf("compile pipeline: nil spec")
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("compile pipeline: missing name")
	}

	snapshot := spec.Clone()
	p := &Plan{spec: snapshot}

	var err error
	if p.input, err = compileList(snapshot, snapshot.Input, guardrail.StageInput, reg); err != nil {
		return nil, fmt.Errorf("input pipeline: %w", err)
	}
	if p.output, err = compileList(snapshot, snapshot.Output, guardrail.StageOutput, reg); err != nil {
		return nil, fmt.Errorf("output pipeline: %w", err)
	}
	return p, nil
}

func compileList(spec *Spec, list []guardrail.Spec, stage guardrail.Stage, reg *guardrail.Registry) ([]bound, error) {
	seen := make(map[string]bool, len(list))
	out := make([]bound, 0, len(list))

	for i := range list {
		gs := &list[i]
		if gs.Name == "" {
			return nil, fmt.Errorf("guardrail %d: missing name", i)
		}
		if seen[gs.Name] {
			return nil, fmt.Errorf("guardrail %q: duplicate name", gs.Name)
		}
		seen[gs.Name] = true

		if !gs.IsEnabled() {
			continue
		}
		declared := gs.Stage
		if declared == "" {
			declared = stage
		}
		if !declared.AppliesTo(stage) {
			continue
		}

		impl, err := reg.Build(*gs)
		if err != nil {
			return nil, err
		}
		out = append(out, bound{
			impl:    impl,
			name:    gs.Name,
			typ:     gs.Type,
			action:  gs.EffectiveAction(),
			onError: gs.EffectiveOnError(spec.Defaults.IsFailClosed()),
			timeout: gs.Timeout(spec.Defaults.DetectorTimeout()),
		})
	}

	// Opt-in ordering heuristic: a stable sort by declared performance
	// class, so cheap pattern checks can short-circuit before any remote
	// call. Declaration order is preserved within a class.
	if spec.Defaults.OrderByPerformance {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].impl.PerformanceClass().Faster(out[j].impl.PerformanceClass())
		})
	}
	return out, nil
}

// Spec returns the plan's frozen spec snapshot.
func (p *Plan) Spec() *Spec { return p.spec }

// Guardrails returns the bound names for a stage, in execution order.
func (p *Plan) Guardrails(stage guardrail.Stage) []string {
	list := p.input
	if stage == guardrail.StageOutput {
		list = p.output
	}
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.name
	}
	return out
}

// DeclaredPerf returns each bound guardrail's declared performance
// class, across both stages. Health reporting compares these against
// observed latencies.
func (p *Plan) DeclaredPerf() map[string]guardrail.PerfClass {
	out := make(map[string]guardrail.PerfClass, len(p.input)+len(p.output))
	for _, b := range p.input {
		out[b.name] = b.impl.PerformanceClass()
	}
	for _, b := range p.output {
		out[b.name] = b.impl.PerformanceClass()
	}
	return out
}

func (p *Plan) list(stage guardrail.Stage) []bound {
	if stage == guardrail.StageOutput {
		return p.output
	}
	return p.input
}
