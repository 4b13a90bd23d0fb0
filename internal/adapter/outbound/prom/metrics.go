// Package prom exposes engine telemetry as Prometheus metrics. The
// Metrics type implements the pipeline observer, so the domain never
// imports the client library.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

// Namespace prefixes every metric this package registers.
const Namespace = "stinger"

// Metric names consumed by the stats service when deriving observed
// latency bands from the registry.
const (
	GuardrailRequestsName = Namespace + "_guardrail_requests_total"
	GuardrailBlocksName   = Namespace + "_guardrail_blocks_total"
	GuardrailWarningsName = Namespace + "_guardrail_warnings_total"
	GuardrailErrorsName   = Namespace + "_guardrail_errors_total"
	GuardrailLatencyName  = Namespace + "_guardrail_latency_seconds"
	PipelineRequestsName  = Namespace + "_pipeline_requests_total"
	PipelineLatencyName   = Namespace + "_pipeline_latency_seconds"
	BreakerOpenName       = Namespace + "_breaker_open"
)

// Metrics is the Prometheus-backed pipeline observer.
type Metrics struct {
	requests        *prometheus.CounterVec
	blocks          *prometheus.CounterVec
	warnings        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	pipelineTotal   *prometheus.CounterVec
	pipelineLatency *prometheus.HistogramVec
	breakerOpen     *prometheus.GaugeVec
}

// NewMetrics registers the engine metric set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	// Buckets span the declared performance bands: instant (<10ms) up
	// through slow (>1s remote round trips).
	latencyBuckets := []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: GuardrailRequestsName,
			Help: "Detector invocations by stage, guardrail, and type.",
		}, []string{"stage", "guardrail", "type"}),
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: GuardrailBlocksName,
			Help: "Detector verdicts that fired, by stage and guardrail.",
		}, []string{"stage", "guardrail"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: GuardrailWarningsName,
			Help: "Findings recorded under action=warn.",
		}, []string{"stage", "guardrail"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: GuardrailErrorsName,
			Help: "Detector failures routed through on_error.",
		}, []string{"stage", "guardrail"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    GuardrailLatencyName,
			Help:    "Per-detector analysis latency.",
			Buckets: latencyBuckets,
		}, []string{"guardrail"}),
		pipelineTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: PipelineRequestsName,
			Help: "Pipeline calls by stage and verdict.",
		}, []string{"stage", "verdict"}),
		pipelineLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    PipelineLatencyName,
			Help:    "Whole-call pipeline latency.",
			Buckets: latencyBuckets,
		}, []string{"stage"}),
		breakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: BreakerOpenName,
			Help: "1 when the breaker is open or half-open, 0 when closed.",
		}, []string{"breaker"}),
	}
}

// GuardrailResult records one detector verdict.
func (m *Metrics) GuardrailResult(stage guardrail.Stage, name, typ string, r guardrail.Result) {
	m.requests.WithLabelValues(string(stage), name, typ).Inc()
	m.latency.WithLabelValues(name).Observe(r.Latency.Seconds())
	if r.Blocked {
		m.blocks.WithLabelValues(string(stage), name).Inc()
	}
}

// GuardrailError records one detector failure.
func (m *Metrics) GuardrailError(stage guardrail.Stage, name, typ string) {
	m.requests.WithLabelValues(string(stage), name, typ).Inc()
	m.errors.WithLabelValues(string(stage), name).Inc()
}

// PipelineDone records one completed pipeline call.
func (m *Metrics) PipelineDone(stage guardrail.Stage, blocked bool, latency time.Duration) {
	verdict := "pass"
	if blocked {
		verdict = "block"
	}
	m.pipelineTotal.WithLabelValues(string(stage), verdict).Inc()
	m.pipelineLatency.WithLabelValues(string(stage)).Observe(latency.Seconds())
}

// RecordWarning counts a warn-action finding. Called by the HTTP layer
// from the aggregate result, since the observer sees only raw verdicts.
func (m *Metrics) RecordWarning(stage guardrail.Stage, name string) {
	m.warnings.WithLabelValues(string(stage), name).Inc()
}

// ObserveBreakers mirrors the breaker set's states onto the gauge.
func (m *Metrics) ObserveBreakers(states map[string]resilience.State) {
	for name, st := range states {
		v := 0.0
		if st != resilience.StateClosed {
			v = 1.0
		}
		m.breakerOpen.WithLabelValues(name).Set(v)
	}
}

// AuditSource reports the audit subsystem's buffer health.
type AuditSource interface {
	BufferDepth() int
	DroppedEvents() int64
}

// RegisterAuditGauges exposes the audit buffer depth and cumulative drop
// count. Gauge functions read the live service on every scrape.
func RegisterAuditGauges(reg prometheus.Registerer, src AuditSource) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: Namespace + "_audit_buffer_depth",
		Help: "Events waiting in the audit buffer.",
	}, func() float64 { return float64(src.BufferDepth()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: Namespace + "_audit_dropped_events_total",
		Help: "Audit events dropped under backpressure since process start.",
	}, func() float64 { return float64(src.DroppedEvents()) })
}

// RegisterUptime exposes seconds since process start.
func RegisterUptime(reg prometheus.Registerer, start time.Time) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: Namespace + "_uptime_seconds",
		Help: "Seconds since the engine started.",
	}, func() float64 { return time.Since(start).Seconds() })
}
