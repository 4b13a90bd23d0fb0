package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/memory"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/prom"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

type passDetector struct{ name string }

func (d *passDetector) Name() string                          { return d.name }
func (d *passDetector) Type() string                          { return "pass" }
func (d *passDetector) PerformanceClass() guardrail.PerfClass { return guardrail.PerfInstant }
func (d *passDetector) Analyze(context.Context, guardrail.Content, *guardrail.CheckContext) (guardrail.Result, error) {
	return guardrail.Allow(), nil
}

func statsPlan(t *testing.T) *pipeline.Plan {
	t.Helper()
	reg := guardrail.NewRegistry()
	if err := reg.Register("pass", func(spec guardrail.Spec) (guardrail.Guardrail, error) {
		return &passDetector{name: spec.Name}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	plan, err := pipeline.Compile(&pipeline.Spec{
		Name:    "stats-test",
		Version: "3",
		Input:   []guardrail.Spec{{Name: "pii", Type: "pass"}},
		Output:  []guardrail.Spec{{Name: "tox", Type: "pass"}},
	}, reg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return plan
}

func TestStatsSnapshot(t *testing.T) {
	plan := statsPlan(t)
	engine := pipeline.NewEngine(plan)

	promReg := prometheus.NewRegistry()
	metrics := prom.NewMetrics(promReg)
	metrics.GuardrailResult(guardrail.StageInput, "pii", "pass", guardrail.Result{
		Blocked: true,
		Latency: 2 * time.Millisecond,
	})
	metrics.GuardrailResult(guardrail.StageInput, "pii", "pass", guardrail.Result{
		Latency: 4 * time.Millisecond,
	})
	metrics.GuardrailError(guardrail.StageOutput, "tox", "pass")

	breakers := resilience.NewBreakerSet(resilience.DefaultBreakerConfig(), slog.Default())
	breakers.Get("tox:classifier") // created closed

	audit := NewAuditService(memory.NewAuditStore(0), slog.Default())

	svc := NewStatsService(engine, breakers, audit, promReg)
	snap := svc.Snapshot()

	if snap.Status != "ok" {
		t.Errorf("Status = %q, want ok", snap.Status)
	}
	if snap.Pipeline != "stats-test" || snap.Version != "3" {
		t.Errorf("Pipeline/Version = %q/%q", snap.Pipeline, snap.Version)
	}
	if len(snap.InputGuardrails) != 1 || snap.InputGuardrails[0] != "pii" {
		t.Errorf("InputGuardrails = %v", snap.InputGuardrails)
	}
	if snap.Breakers["tox:classifier"] != "closed" {
		t.Errorf("Breakers = %v", snap.Breakers)
	}
	if snap.Audit == nil || snap.Audit.BufferDepth != 0 || snap.Audit.DroppedEvents != 0 {
		t.Errorf("Audit = %+v", snap.Audit)
	}

	var pii, tox *DetectorStats
	for i := range snap.Detectors {
		switch snap.Detectors[i].Name {
		case "pii":
			pii = &snap.Detectors[i]
		case "tox":
			tox = &snap.Detectors[i]
		}
	}
	if pii == nil || tox == nil {
		t.Fatalf("Detectors = %+v", snap.Detectors)
	}
	if pii.Requests != 2 || pii.Blocks != 1 {
		t.Errorf("pii = %+v, want 2 requests 1 block", pii)
	}
	if pii.ObservedPerf != guardrail.PerfInstant || pii.DeclaredPerf != guardrail.PerfInstant {
		t.Errorf("pii perf = declared %q observed %q", pii.DeclaredPerf, pii.ObservedPerf)
	}
	if tox.Errors != 1 || tox.Requests != 1 {
		t.Errorf("tox = %+v, want 1 request 1 error", tox)
	}
}

func TestStatsDegradedOnOpenBreaker(t *testing.T) {
	engine := pipeline.NewEngine(statsPlan(t))
	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{FailureThreshold: 1}, slog.Default())
	breakers.Get("tox:classifier").RecordFailure()

	svc := NewStatsService(engine, breakers, nil, nil)
	snap := svc.Snapshot()
	if snap.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", snap.Status)
	}
	if snap.Breakers["tox:classifier"] != "open" {
		t.Errorf("Breakers = %v", snap.Breakers)
	}
}
