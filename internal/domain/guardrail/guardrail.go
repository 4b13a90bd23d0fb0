package guardrail

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Guardrail is the single capability every detector implements.
//
// Analyze inspects the content and returns a Result. The call may suspend
// on I/O (remote classifier, file read) but must honor ctx cancellation
// and deadline promptly. Pattern detectors are CPU-bound and must not
// suspend. A returned error is translated by the engine into the
// guardrail's on_error policy; detectors never decide error policy
// themselves.
type Guardrail interface {
	// Name is the instance name from the spec.
	Name() string
	// Type is the registry type tag.
	Type() string
	// PerformanceClass is the declared latency band.
	PerformanceClass() PerfClass
	// Analyze runs the detector against one piece of content.
	Analyze(ctx context.Context, content Content, cc *CheckContext) (Result, error)
}

// Factory builds a detector instance from its spec. Configuration errors
// (missing required fields, bad patterns) must surface here, not at
// analysis time.
type Factory func(spec Spec) (Guardrail, error)

// Registry maps detector type tags to factories. There is no runtime
// class-name lookup anywhere in the engine: a type either registered a
// factory or the configuration is invalid.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry. Tests construct local registries
// with only the detectors under test.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for a type tag. Registering the same tag
// twice is a programmer error.
func (r *Registry) Register(typeTag string, f Factory) error {
	if typeTag == "" {
		return fmt.Errorf("register guardrail: empty type tag")
	}
	if f == nil {
		return fmt.Errorf("register guardrail %q: nil factory", typeTag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[typeTag]; dup {
		return fmt.Errorf("register guardrail %q: already registered", typeTag)
	}
	r.factories[typeTag] = f
	return nil
}

// Known reports whether a type tag has a registered factory.
func (r *Registry) Known(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeTag]
	return ok
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build constructs a detector from its spec.
func (r *Registry) Build(spec Spec) (Guardrail, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("guardrail %q: unknown type %q", spec.Name, spec.Type)
	}
	g, err := f(spec)
	if err != nil {
		return nil, fmt.Errorf("guardrail %q (%s): %w", spec.Name, spec.Type, err)
	}
	return g, nil
}
