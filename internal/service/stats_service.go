package service

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/prom"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

// DetectorStats is one detector's request counters plus the declared vs
// observed latency band.
type DetectorStats struct {
	Name         string  `json:"name"`
	Requests     uint64  `json:"requests"`
	Blocks       uint64  `json:"blocks"`
	Warnings     uint64  `json:"warnings"`
	Errors       uint64  `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// DeclaredPerf is the latency band the detector claims; ObservedPerf
	// is derived from the measured average. A mismatch flags a detector
	// running outside its class.
	DeclaredPerf guardrail.PerfClass `json:"declared_perf,omitempty"`
	ObservedPerf guardrail.PerfClass `json:"observed_perf,omitempty"`
}

// AuditHealth reports the audit buffer's backpressure state.
type AuditHealth struct {
	BufferDepth    int   `json:"buffer_depth"`
	BufferCapacity int   `json:"buffer_capacity"`
	DroppedEvents  int64 `json:"dropped_events"`
}

// HealthSnapshot is the engine's operational self-report.
type HealthSnapshot struct {
	// Status is "ok", or "degraded" when any breaker is not closed.
	Status           string            `json:"status"`
	UptimeSeconds    float64           `json:"uptime_seconds"`
	Pipeline         string            `json:"pipeline"`
	Version          string            `json:"version,omitempty"`
	InputGuardrails  []string          `json:"input_guardrails"`
	OutputGuardrails []string          `json:"output_guardrails"`
	Breakers         map[string]string `json:"breakers,omitempty"`
	Audit            *AuditHealth      `json:"audit,omitempty"`
	Detectors        []DetectorStats   `json:"detectors,omitempty"`
}

// PlanSource yields the active pipeline plan.
type PlanSource interface {
	Plan() *pipeline.Plan
}

// StatsService assembles health snapshots from the live parts: the
// active plan, breaker states, audit buffer counters, and the Prometheus
// registry the pipeline observer writes into.
type StatsService struct {
	started  time.Time
	plans    PlanSource
	breakers *resilience.BreakerSet
	audit    *AuditService
	gatherer prometheus.Gatherer
}

// NewStatsService wires the snapshot sources. breakers, audit, and
// gatherer may be nil; the corresponding sections are omitted.
func NewStatsService(plans PlanSource, breakers *resilience.BreakerSet, audit *AuditService, gatherer prometheus.Gatherer) *StatsService {
	return &StatsService{
		started:  time.Now(),
		plans:    plans,
		breakers: breakers,
		audit:    audit,
		gatherer: gatherer,
	}
}

// Snapshot assembles the current health view.
func (s *StatsService) Snapshot() HealthSnapshot {
	plan := s.plans.Plan()
	spec := plan.Spec()

	snap := HealthSnapshot{
		Status:           "ok",
		UptimeSeconds:    time.Since(s.started).Seconds(),
		Pipeline:         spec.Name,
		Version:          spec.Version,
		InputGuardrails:  plan.Guardrails(guardrail.StageInput),
		OutputGuardrails: plan.Guardrails(guardrail.StageOutput),
	}

	if s.breakers != nil {
		states := s.breakers.States()
		if len(states) > 0 {
			snap.Breakers = make(map[string]string, len(states))
			for name, st := range states {
				snap.Breakers[name] = string(st)
				if st != resilience.StateClosed {
					snap.Status = "degraded"
				}
			}
		}
	}

	if s.audit != nil {
		snap.Audit = &AuditHealth{
			BufferDepth:    s.audit.BufferDepth(),
			BufferCapacity: s.audit.BufferCapacity(),
			DroppedEvents:  s.audit.DroppedEvents(),
		}
	}

	if s.gatherer != nil {
		snap.Detectors = s.detectorStats(plan.DeclaredPerf())
	}
	return snap
}

// detectorStats folds the gathered metric families into per-detector
// counters and derives the observed latency band.
func (s *StatsService) detectorStats(declared map[string]guardrail.PerfClass) []DetectorStats {
	families, err := s.gatherer.Gather()
	if err != nil {
		return nil
	}

	stats := make(map[string]*DetectorStats)
	get := func(name string) *DetectorStats {
		d, ok := stats[name]
		if !ok {
			d = &DetectorStats{Name: name}
			stats[name] = d
		}
		return d
	}

	for _, mf := range families {
		switch mf.GetName() {
		case prom.GuardrailRequestsName:
			for _, m := range mf.GetMetric() {
				get(labelValue(m, "guardrail")).Requests += uint64(m.GetCounter().GetValue())
			}
		case prom.GuardrailBlocksName:
			for _, m := range mf.GetMetric() {
				get(labelValue(m, "guardrail")).Blocks += uint64(m.GetCounter().GetValue())
			}
		case prom.GuardrailWarningsName:
			for _, m := range mf.GetMetric() {
				get(labelValue(m, "guardrail")).Warnings += uint64(m.GetCounter().GetValue())
			}
		case prom.GuardrailErrorsName:
			for _, m := range mf.GetMetric() {
				get(labelValue(m, "guardrail")).Errors += uint64(m.GetCounter().GetValue())
			}
		case prom.GuardrailLatencyName:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				if h.GetSampleCount() == 0 {
					continue
				}
				avg := h.GetSampleSum() / float64(h.GetSampleCount())
				d := get(labelValue(m, "guardrail"))
				d.AvgLatencyMs = avg * 1000
				d.ObservedPerf = classifyLatency(avg)
			}
		}
	}

	out := make([]DetectorStats, 0, len(stats))
	for name, d := range stats {
		d.DeclaredPerf = declared[name]
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// classifyLatency maps a measured average onto the declared band scale.
func classifyLatency(seconds float64) guardrail.PerfClass {
	switch {
	case seconds < 0.01:
		return guardrail.PerfInstant
	case seconds < 0.1:
		return guardrail.PerfFast
	case seconds < 1:
		return guardrail.PerfModerate
	default:
		return guardrail.PerfSlow
	}
}
