package detector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

type fakeClassifier struct {
	result *outbound.Classification
	err    error
	calls  atomic.Int64
}

func (f *fakeClassifier) Classify(_ context.Context, _, _ string) (*outbound.Classification, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeClassifier) Ping(context.Context) error { return f.err }

func testDeps(c outbound.Classifier) Deps {
	return Deps{
		Classifier: c,
		Breakers:   resilience.NewBreakerSet(resilience.DefaultBreakerConfig(), slog.Default()),
		Retry:      resilience.RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond},
	}
}

func TestModelDetectorFlagged(t *testing.T) {
	fake := &fakeClassifier{result: &outbound.Classification{
		Flagged:    true,
		Confidence: 0.93,
		Categories: []string{"email"},
	}}
	deps := testDeps(fake)
	factory := newModelFactory(&deps, outbound.TaskPII, "pii_detected")

	g, err := factory(testSpec("model-pii", TypeModelPII, nil))
	if err != nil {
		t.Fatalf("model factory: %v", err)
	}

	r := analyze(t, g, "contact jane@example.com")
	if !r.Blocked || r.Reason != "pii_detected" {
		t.Errorf("flagged classification should block: %+v", r)
	}
	if r.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", r.Confidence)
	}
	if g.PerformanceClass() != guardrail.PerfSlow {
		t.Errorf("PerformanceClass = %v, want slow", g.PerformanceClass())
	}
}

func TestModelDetectorBelowThreshold(t *testing.T) {
	fake := &fakeClassifier{result: &outbound.Classification{Flagged: true, Confidence: 0.5}}
	deps := testDeps(fake)
	factory := newModelFactory(&deps, outbound.TaskToxicity, "toxicity_detected")

	g, err := factory(testSpec("model-tox", TypeModelToxicity, nil))
	if err != nil {
		t.Fatalf("model factory: %v", err)
	}
	if r := analyze(t, g, "borderline"); r.Blocked {
		t.Errorf("confidence below threshold must not block: %+v", r)
	}
}

func TestModelDetectorRequiresClassifier(t *testing.T) {
	deps := Deps{}
	factory := newModelFactory(&deps, outbound.TaskPII, "pii_detected")
	if _, err := factory(testSpec("model-pii", TypeModelPII, nil)); err == nil {
		t.Error("expected configuration error without a classifier")
	}
}

func TestModelDetectorCategoryScope(t *testing.T) {
	fake := &fakeClassifier{result: &outbound.Classification{
		Flagged:    true,
		Confidence: 0.95,
		Categories: []string{"violence"},
	}}
	deps := testDeps(fake)
	factory := newModelFactory(&deps, outbound.TaskModeration, "moderation_flagged")

	g, err := factory(testSpec("mod", TypeModeration, map[string]any{
		"categories": []any{"sexual"},
	}))
	if err != nil {
		t.Fatalf("model factory: %v", err)
	}
	if r := analyze(t, g, "some text"); r.Blocked {
		t.Errorf("hit outside declared categories must not block: %+v", r)
	}
}

func TestModelDetectorBreakerOpens(t *testing.T) {
	fake := &fakeClassifier{err: &resilience.UpstreamError{Status: 503, Msg: "down"}}
	deps := testDeps(fake)
	factory := newModelFactory(&deps, outbound.TaskPII, "pii_detected")

	g, err := factory(testSpec("model-pii", TypeModelPII, nil))
	if err != nil {
		t.Fatalf("model factory: %v", err)
	}

	content := guardrail.Content{Text: "x"}
	cc := &guardrail.CheckContext{Stage: guardrail.StageInput}
	for i := 0; i < 5; i++ {
		if _, err := g.Analyze(context.Background(), content, cc); err == nil {
			t.Fatalf("call %d: expected upstream error", i)
		}
	}

	callsBefore := fake.calls.Load()
	_, err = g.Analyze(context.Background(), content, cc)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after 5 failures, got %v", err)
	}
	if fake.calls.Load() != callsBefore {
		t.Error("open breaker must not reach the classifier")
	}

	if state := deps.Breakers.Get("model-pii:classifier").State(); state != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", state)
	}
}

func TestModelDetectorConfigErrorDoesNotTrip(t *testing.T) {
	fake := &fakeClassifier{err: &resilience.ConfigError{Status: 401, Msg: "bad key"}}
	deps := testDeps(fake)
	factory := newModelFactory(&deps, outbound.TaskPII, "pii_detected")

	g, err := factory(testSpec("model-pii", TypeModelPII, nil))
	if err != nil {
		t.Fatalf("model factory: %v", err)
	}

	cc := &guardrail.CheckContext{Stage: guardrail.StageInput}
	for i := 0; i < 10; i++ {
		if _, err := g.Analyze(context.Background(), guardrail.Content{Text: "x"}, cc); err == nil {
			t.Fatalf("call %d: expected config error", i)
		}
	}
	if state := deps.Breakers.Get("model-pii:classifier").State(); state != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed after config errors", state)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	reg := guardrail.NewRegistry()
	deps := testDeps(&fakeClassifier{result: &outbound.Classification{}})
	deps.Conversations = nil

	if err := RegisterBuiltins(reg, deps); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	for _, tag := range []string{
		TypePatternPII, TypePatternToxicity, TypePatternCode, TypePatternInjection,
		TypeLength, TypeRegex, TypeKeywordBlock, TypeKeywordList,
		TypeURLFilter, TypeTopicFilter, TypeRateLimit, TypeCompound, TypeCELRule,
		TypeModelPII, TypeModelToxicity, TypeModelCode, TypeModelInjection, TypeModeration,
	} {
		if !reg.Known(tag) {
			t.Errorf("type %q not registered", tag)
		}
	}

	// Registering twice is a programmer error.
	if err := RegisterBuiltins(reg, deps); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
