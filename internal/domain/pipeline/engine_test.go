package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// stub is a scriptable detector for engine tests.
type stub struct {
	name  string
	typ   string
	perf  guardrail.PerfClass
	fn    func(ctx context.Context) (guardrail.Result, error)
	calls atomic.Int64
}

func (s *stub) Name() string                          { return s.name }
func (s *stub) Type() string                          { return s.typ }
func (s *stub) PerformanceClass() guardrail.PerfClass { return s.perf }

func (s *stub) Analyze(ctx context.Context, _ guardrail.Content, _ *guardrail.CheckContext) (guardrail.Result, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

// registerStub installs a factory producing the given stub and returns it
// so tests can inspect call counts.
func registerStub(t *testing.T, reg *guardrail.Registry, typ string, perf guardrail.PerfClass, fn func(ctx context.Context) (guardrail.Result, error)) *stub {
	t.Helper()
	st := &stub{typ: typ, perf: perf, fn: fn}
	err := reg.Register(typ, func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		st.name = spec.Name
		return st, nil
	})
	if err != nil {
		t.Fatalf("register %s: %v", typ, err)
	}
	return st
}

func passResult(context.Context) (guardrail.Result, error) {
	return guardrail.Allow(), nil
}

func blockResult(confidence float64, reason string) func(context.Context) (guardrail.Result, error) {
	return func(context.Context) (guardrail.Result, error) {
		return guardrail.Result{
			Blocked:    true,
			Confidence: confidence,
			Risk:       guardrail.RiskHigh,
			Reason:     reason,
			Indicators: []string{reason},
		}, nil
	}
}

// capRecorder captures audit events synchronously.
type capRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *capRecorder) Record(e audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *capRecorder) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Event, len(r.events))
	copy(out, r.events)
	return out
}

func gspec(name, typ string) guardrail.Spec {
	return guardrail.Spec{Name: name, Type: typ}
}

func mustCompile(t *testing.T, spec *Spec, reg *guardrail.Registry) *Plan {
	t.Helper()
	plan, err := Compile(spec, reg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return plan
}

func TestEngineBlockShortCircuits(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "blocker", guardrail.PerfInstant, blockResult(0.95, "pii_detected"))
	after := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("pii", "blocker"), gspec("later", "pass")},
	}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "ssn here"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if !agg.Blocked {
		t.Fatal("expected block")
	}
	if agg.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", agg.Confidence)
	}
	if len(agg.Reasons) != 1 || agg.Reasons[0] != "pii" {
		t.Errorf("Reasons = %v, want [pii]", agg.Reasons)
	}
	if after.calls.Load() != 0 {
		t.Error("detector after the block was invoked")
	}
}

// The engine trusts the detector's verdict: a block below the default
// confidence threshold still stands, because detectors gate themselves.
func TestEngineDoesNotReGateByConfidence(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "low_conf", guardrail.PerfInstant, blockResult(0.3, "compound_threshold_exceeded"))

	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("compound", "low_conf")},
	}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if !agg.Blocked || agg.Confidence != 0.3 {
		t.Errorf("got blocked=%v conf=%v, want blocked at 0.3", agg.Blocked, agg.Confidence)
	}
}

func TestEngineWarnContinues(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "warner", guardrail.PerfInstant, blockResult(0.9, "toxicity_detected"))
	after := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	warn := gspec("tox", "warner")
	warn.Action = guardrail.ActionWarn
	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{warn, gspec("later", "pass")},
	}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "I hate you"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if agg.Blocked {
		t.Error("warn action must not block")
	}
	if len(agg.Warnings) != 1 || agg.Warnings[0] != "tox" {
		t.Errorf("Warnings = %v, want [tox]", agg.Warnings)
	}
	if after.calls.Load() != 1 {
		t.Error("pipeline did not continue past the warning")
	}
}

func TestEngineMonitorModeNeverBlocks(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "monitor", guardrail.PerfInstant, blockResult(1.0, "keyword_match"))

	mon := gspec("shadow", "monitor")
	mon.Action = guardrail.ActionAllow
	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{mon}}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if agg.Blocked || len(agg.Warnings) != 0 {
		t.Errorf("monitor mode produced blocked=%v warnings=%v", agg.Blocked, agg.Warnings)
	}
	if len(agg.Results) != 1 || !agg.Results[0].Blocked {
		t.Error("monitor finding must still appear in Results")
	}
}

func TestEngineOnErrorPolicies(t *testing.T) {
	boom := func(context.Context) (guardrail.Result, error) {
		return guardrail.Result{}, errors.New("classifier down")
	}

	tests := []struct {
		name        string
		onError     guardrail.OnError
		wantBlocked bool
		wantWarn    bool
	}{
		{"block", guardrail.OnErrorBlock, true, false},
		{"warn", guardrail.OnErrorWarn, false, true},
		{"allow", guardrail.OnErrorAllow, false, false},
		{"skip", guardrail.OnErrorSkip, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := guardrail.NewRegistry()
			registerStub(t, reg, "failing", guardrail.PerfInstant, boom)
			after := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

			gs := gspec("flaky", "failing")
			gs.OnError = tt.onError
			plan := mustCompile(t, &Spec{
				Name:  "test",
				Input: []guardrail.Spec{gs, gspec("later", "pass")},
			}, reg)
			e := NewEngine(plan)

			agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
			if err != nil {
				t.Fatalf("CheckInput: %v", err)
			}
			if agg.Blocked != tt.wantBlocked {
				t.Errorf("Blocked = %v, want %v", agg.Blocked, tt.wantBlocked)
			}
			if tt.wantBlocked {
				if len(agg.Reasons) != 1 || agg.Reasons[0] != "detector_error:flaky" {
					t.Errorf("Reasons = %v", agg.Reasons)
				}
				if after.calls.Load() != 0 {
					t.Error("pipeline continued past a fail-closed error")
				}
			} else if after.calls.Load() != 1 {
				t.Error("pipeline did not continue")
			}
			gotWarn := len(agg.Warnings) == 1 && agg.Warnings[0] == "flaky"
			if gotWarn != tt.wantWarn {
				t.Errorf("Warnings = %v, want warning=%v", agg.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestEngineFailClosedDefault(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "failing", guardrail.PerfInstant, func(context.Context) (guardrail.Result, error) {
		return guardrail.Result{}, errors.New("boom")
	})

	// No on_error on the guardrail, no fail_closed on the document:
	// the default is block.
	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{gspec("g", "failing")}}, reg)
	agg, err := NewEngine(plan).CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if !agg.Blocked {
		t.Error("default error policy must fail closed")
	}

	open := false
	plan2 := mustCompile(t, &Spec{
		Name:     "test",
		Defaults: Defaults{FailClosed: &open},
		Input:    []guardrail.Spec{gspec("g", "failing")},
	}, reg)
	agg2, err := NewEngine(plan2).CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if agg2.Blocked {
		t.Error("fail_closed=false must downgrade errors to warnings")
	}
	if len(agg2.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one", agg2.Warnings)
	}
}

func TestEngineDeadlineBlocks(t *testing.T) {
	reg := guardrail.NewRegistry()
	slow := registerStub(t, reg, "slow", guardrail.PerfSlow, func(ctx context.Context) (guardrail.Result, error) {
		select {
		case <-ctx.Done():
			return guardrail.Result{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return guardrail.Allow(), nil
		}
	})
	after := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	plan := mustCompile(t, &Spec{
		Name:     "test",
		Defaults: Defaults{DeadlineMs: 30},
		Input:    []guardrail.Spec{gspec("remote", "slow"), gspec("later", "pass")},
	}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if !agg.Blocked {
		t.Fatal("deadline expiry must block")
	}
	if len(agg.Reasons) != 1 || agg.Reasons[0] != ReasonDeadline {
		t.Errorf("Reasons = %v, want [deadline]", agg.Reasons)
	}
	if slow.calls.Load() != 1 || after.calls.Load() != 0 {
		t.Errorf("calls: slow=%d later=%d", slow.calls.Load(), after.calls.Load())
	}
}

// A per-detector timeout is an ordinary detector failure, routed through
// on_error, not the synthetic deadline verdict.
func TestEngineDetectorTimeoutUsesErrorPolicy(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "slow", guardrail.PerfSlow, func(ctx context.Context) (guardrail.Result, error) {
		<-ctx.Done()
		return guardrail.Result{}, ctx.Err()
	})
	after := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	gs := gspec("remote", "slow")
	gs.TimeoutMs = 20
	gs.OnError = guardrail.OnErrorWarn
	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{gs, gspec("later", "pass")},
	}, reg)
	e := NewEngine(plan)

	agg, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if agg.Blocked {
		t.Error("per-detector timeout with on_error=warn must not block")
	}
	if len(agg.Warnings) != 1 || agg.Warnings[0] != "remote" {
		t.Errorf("Warnings = %v, want [remote]", agg.Warnings)
	}
	if after.calls.Load() != 1 {
		t.Error("pipeline did not continue after the timeout")
	}
}

func TestEngineConfidenceAggregation(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "low", guardrail.PerfInstant, func(context.Context) (guardrail.Result, error) {
		return guardrail.Result{Confidence: 0.4, Risk: guardrail.RiskLow, Reason: "hint", Indicators: []string{"a"}}, nil
	})
	registerStub(t, reg, "high", guardrail.PerfInstant, func(context.Context) (guardrail.Result, error) {
		return guardrail.Result{Confidence: 0.7, Risk: guardrail.RiskMedium, Reason: "hint", Indicators: []string{"a", "b"}}, nil
	})

	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("one", "low"), gspec("two", "high")},
	}, reg)
	agg, err := NewEngine(plan).CheckInput(context.Background(), "", guardrail.Content{Text: "x"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if agg.Blocked {
		t.Fatal("nothing blocked")
	}
	if agg.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want max 0.7", agg.Confidence)
	}
	if len(agg.Indicators) != 2 {
		t.Errorf("Indicators = %v, want deduplicated [a b]", agg.Indicators)
	}
	if len(agg.Results) != 2 {
		t.Errorf("Results = %d, want 2", len(agg.Results))
	}
}

func TestEngineConversationFlow(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	store := conversation.NewStore()
	conv, err := store.Open(conversation.KindHumanAI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	plan := mustCompile(t, &Spec{
		Name:   "test",
		Input:  []guardrail.Spec{gspec("in", "pass")},
		Output: []guardrail.Spec{gspec("out", "pass")},
	}, reg)
	e := NewEngine(plan, WithConversations(store))

	if _, err := e.CheckInput(context.Background(), conv.ID(), guardrail.Content{Text: "what is 2+2?"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if conv.Len() != 0 {
		t.Fatal("turn recorded before the output check completed it")
	}
	if _, err := e.CheckOutput(context.Background(), conv.ID(), guardrail.Content{Text: "4"}); err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}

	turns, err := store.History(conv.ID(), conversation.Window{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(turns))
	}
	if turns[0].Prompt != "what is 2+2?" || turns[0].Response != "4" || turns[0].Blocked {
		t.Errorf("turn = %+v", turns[0])
	}
	if turns[0].Seq != 1 {
		t.Errorf("Seq = %d, want 1", turns[0].Seq)
	}
}

func TestEngineBlockedInputRecordsBlockedTurn(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "blocker", guardrail.PerfInstant, blockResult(1.0, "keyword_match"))

	store := conversation.NewStore()
	conv, _ := store.Open(conversation.KindHumanAI)

	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{gspec("kw", "blocker")}}, reg)
	e := NewEngine(plan, WithConversations(store))

	agg, err := e.CheckInput(context.Background(), conv.ID(), guardrail.Content{Text: "forbidden"})
	if err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if !agg.Blocked {
		t.Fatal("expected block")
	}

	turns, _ := store.History(conv.ID(), conversation.Window{})
	if len(turns) != 1 || !turns[0].Blocked || turns[0].Response != "" {
		t.Fatalf("turns = %+v, want one blocked turn with empty response", turns)
	}
	if turns[0].BlockReason != "kw" {
		t.Errorf("BlockReason = %q, want kw", turns[0].BlockReason)
	}
}

func TestEngineBlockedOutputWithholdsResponse(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)
	registerStub(t, reg, "blocker", guardrail.PerfInstant, blockResult(0.9, "pii_detected"))

	store := conversation.NewStore()
	conv, _ := store.Open(conversation.KindHumanAI)

	plan := mustCompile(t, &Spec{
		Name:   "test",
		Input:  []guardrail.Spec{gspec("in", "pass")},
		Output: []guardrail.Spec{gspec("out", "blocker")},
	}, reg)
	e := NewEngine(plan, WithConversations(store))

	if _, err := e.CheckInput(context.Background(), conv.ID(), guardrail.Content{Text: "my details?"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	agg, err := e.CheckOutput(context.Background(), conv.ID(), guardrail.Content{Text: "ssn 123-45-6789"})
	if err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}
	if !agg.Blocked {
		t.Fatal("expected output block")
	}

	turns, _ := store.History(conv.ID(), conversation.Window{})
	if len(turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(turns))
	}
	if turns[0].Response != "" || !turns[0].Blocked || turns[0].Prompt != "my details?" {
		t.Errorf("turn = %+v, want blocked turn keeping the prompt and withholding the response", turns[0])
	}
}

func TestEngineUnknownConversation(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{gspec("in", "pass")}}, reg)
	e := NewEngine(plan, WithConversations(conversation.NewStore()))

	_, err := e.CheckInput(context.Background(), "nope", guardrail.Content{Text: "x"})
	if !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEngineAuditEventOrdering(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)
	registerStub(t, reg, "blocker", guardrail.PerfInstant, blockResult(0.9, "pii_detected"))

	rec := &capRecorder{}
	plan := mustCompile(t, &Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("first", "pass"), gspec("second", "blocker")},
	}, reg)
	e := NewEngine(plan, WithRecorder(rec))

	if _, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "hello"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}

	events := rec.all()
	if len(events) != 3 {
		t.Fatalf("events = %d, want content + 2 decisions", len(events))
	}
	if events[0].Type != audit.EventUserPrompt {
		t.Errorf("events[0] = %q, want user_prompt", events[0].Type)
	}
	if events[1].FilterName != "first" || events[1].Decision != "allow" {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[2].FilterName != "second" || events[2].Decision != "block" {
		t.Errorf("events[2] = %+v", events[2])
	}
	if events[2].Reason != "pii_detected" {
		t.Errorf("Reason = %q", events[2].Reason)
	}
}

func TestEngineSwapEmitsConfigChange(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	rec := &capRecorder{}
	plan := mustCompile(t, &Spec{Name: "test", Version: "1", Input: []guardrail.Spec{gspec("g", "pass")}}, reg)
	e := NewEngine(plan, WithRecorder(rec))

	next := mustCompile(t, &Spec{Name: "test", Version: "2", Input: []guardrail.Spec{gspec("g", "pass")}}, reg)
	e.Swap(next)

	events := rec.all()
	if len(events) != 1 || events[0].Type != audit.EventConfigChange {
		t.Fatalf("events = %+v, want one config_change", events)
	}
	if events[0].Metadata["version"] != "2" || events[0].Metadata["previous_version"] != "1" {
		t.Errorf("Metadata = %v", events[0].Metadata)
	}
	if e.Plan() != next {
		t.Error("plan not swapped")
	}
}

func TestEngineSetGuardrailEnabled(t *testing.T) {
	reg := guardrail.NewRegistry()
	st := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{gspec("g", "pass")}}, reg)
	e := NewEngine(plan)

	if err := e.SetGuardrailEnabled("g", false, reg); err != nil {
		t.Fatalf("SetGuardrailEnabled: %v", err)
	}
	if _, err := e.CheckInput(context.Background(), "", guardrail.Content{Text: "x"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if st.calls.Load() != 0 {
		t.Error("disabled guardrail was invoked")
	}

	if err := e.SetGuardrailEnabled("missing", false, reg); err == nil {
		t.Error("expected error for unknown guardrail")
	}
}

func TestEnginePerformanceOrdering(t *testing.T) {
	reg := guardrail.NewRegistry()
	var order []string
	var mu sync.Mutex
	note := func(name string) func(context.Context) (guardrail.Result, error) {
		return func(context.Context) (guardrail.Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return guardrail.Allow(), nil
		}
	}
	registerStub(t, reg, "slow", guardrail.PerfSlow, note("slow"))
	registerStub(t, reg, "instant", guardrail.PerfInstant, note("instant"))

	plan := mustCompile(t, &Spec{
		Name:     "test",
		Defaults: Defaults{OrderByPerformance: true},
		Input:    []guardrail.Spec{gspec("remote", "slow"), gspec("local", "instant")},
	}, reg)
	if _, err := NewEngine(plan).CheckInput(context.Background(), "", guardrail.Content{Text: "x"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if len(order) != 2 || order[0] != "instant" || order[1] != "slow" {
		t.Errorf("execution order = %v, want instant before slow", order)
	}
}

func TestCompileRejectsDuplicatesAndUnknownTypes(t *testing.T) {
	reg := guardrail.NewRegistry()
	registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	if _, err := Compile(&Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("dup", "pass"), gspec("dup", "pass")},
	}, reg); err == nil {
		t.Error("expected duplicate-name error")
	}

	if _, err := Compile(&Spec{
		Name:  "test",
		Input: []guardrail.Spec{gspec("g", "no_such_type")},
	}, reg); err == nil {
		t.Error("expected unknown-type error")
	}
}

func TestCompileSkipsInapplicableStage(t *testing.T) {
	reg := guardrail.NewRegistry()
	st := registerStub(t, reg, "pass", guardrail.PerfInstant, passResult)

	outOnly := gspec("g", "pass")
	outOnly.Stage = guardrail.StageOutput
	plan := mustCompile(t, &Spec{Name: "test", Input: []guardrail.Spec{outOnly}}, reg)

	if _, err := NewEngine(plan).CheckInput(context.Background(), "", guardrail.Content{Text: "x"}); err != nil {
		t.Fatalf("CheckInput: %v", err)
	}
	if st.calls.Load() != 0 {
		t.Error("output-only guardrail ran in the input pipeline")
	}
}
