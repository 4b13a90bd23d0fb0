package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/prom"
	"github.com/virtualsteve-star/stinger-sub004/internal/config"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/service"
	"github.com/virtualsteve-star/stinger-sub004/pkg/check"
)

// maxBodyBytes bounds a check request body.
const maxBodyBytes = 1 << 20

// HandlerConfig wires the facade's collaborators. Engine and Registry
// are required; the rest degrade gracefully when nil.
type HandlerConfig struct {
	Engine        *pipeline.Engine
	Registry      *guardrail.Registry
	Conversations *conversation.Store
	Stats         *service.StatsService
	Metrics       *prom.Metrics
	Recorder      audit.Recorder
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// Handler serves the engine's HTTP surface.
type Handler struct {
	cfg HandlerConfig

	mu            sync.Mutex
	presetEngines map[string]*pipeline.Engine
}

// NewHandler creates the facade handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = audit.NopRecorder{}
	}
	return &Handler{
		cfg:           cfg,
		presetEngines: make(map[string]*pipeline.Engine),
	}
}

// Register installs the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/check", h.handleCheck)
	mux.HandleFunc("GET /v1/rules", h.handleRules)
	mux.HandleFunc("POST /v1/conversations", h.handleOpenConversation)
	mux.HandleFunc("GET /health", h.handleHealth)
	if h.cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req check.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var stage guardrail.Stage
	switch req.Stage {
	case "input":
		stage = guardrail.StageInput
	case "output":
		stage = guardrail.StageOutput
	default:
		writeError(w, http.StatusBadRequest, `stage must be "input" or "output"`)
		return
	}

	engine := h.cfg.Engine
	if req.Preset != "" {
		var err error
		if engine, err = h.presetEngine(req.Preset); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	content := guardrail.Content{Text: req.Content, Metadata: req.Metadata}
	var agg pipeline.AggregateResult
	var err error
	if stage == guardrail.StageInput {
		agg, err = engine.CheckInput(r.Context(), req.ConversationID, content)
	} else {
		agg, err = engine.CheckOutput(r.Context(), req.ConversationID, content)
	}
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		LoggerFromContext(r.Context()).Error("check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}

	if h.cfg.Metrics != nil {
		for _, name := range agg.Warnings {
			h.cfg.Metrics.RecordWarning(stage, name)
		}
	}
	writeJSON(w, http.StatusOK, toResponse(agg))
}

func toResponse(agg pipeline.AggregateResult) check.Response {
	resp := check.Response{
		Blocked:    agg.Blocked,
		Confidence: agg.Confidence,
		Reasons:    agg.Reasons,
		Warnings:   agg.Warnings,
		Indicators: agg.Indicators,
	}
	if resp.Reasons == nil {
		resp.Reasons = []string{}
	}
	for _, r := range agg.Results {
		resp.Details = append(resp.Details, check.DetectorDetail{
			Name:       r.GuardrailName,
			Type:       r.GuardrailType,
			Blocked:    r.Blocked,
			Confidence: r.Confidence,
			Risk:       string(r.Risk),
			Reason:     r.Reason,
			Indicators: r.Indicators,
			LatencyMs:  float64(r.Latency.Microseconds()) / 1000,
		})
	}
	return resp
}

// presetEngine returns a cached engine for a shipped preset. Preset
// engines share the conversation store and audit recorder with the
// active engine; only the plan differs.
func (h *Handler) presetEngine(name string) (*pipeline.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.presetEngines[name]; ok {
		return e, nil
	}

	spec, err := config.PipelineFromPreset(name, h.cfg.Registry)
	if err != nil {
		return nil, err
	}
	plan, err := pipeline.Compile(spec, h.cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}

	opts := []pipeline.EngineOption{
		pipeline.WithRecorder(h.cfg.Recorder),
		pipeline.WithLogger(h.cfg.Logger),
	}
	if h.cfg.Conversations != nil {
		opts = append(opts, pipeline.WithConversations(h.cfg.Conversations))
	}
	if h.cfg.Metrics != nil {
		opts = append(opts, pipeline.WithObserver(h.cfg.Metrics))
	}
	e := pipeline.NewEngine(plan, opts...)
	h.presetEngines[name] = e
	return e, nil
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	var spec *pipeline.Spec
	if name := r.URL.Query().Get("preset"); name != "" {
		var err error
		if spec, err = config.Preset(name); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	} else {
		spec = h.cfg.Engine.Plan().Spec()
	}

	resp := check.RulesResponse{
		Pipeline: spec.Name,
		Version:  spec.Version,
		Input:    toRules(spec.Input, guardrail.StageInput, spec.Defaults.IsFailClosed()),
		Output:   toRules(spec.Output, guardrail.StageOutput, spec.Defaults.IsFailClosed()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRules(list []guardrail.Spec, stage guardrail.Stage, failClosed bool) []check.Rule {
	rules := make([]check.Rule, 0, len(list))
	for i := range list {
		gs := &list[i]
		declared := gs.Stage
		if declared == "" {
			declared = stage
		}
		rules = append(rules, check.Rule{
			Name:      gs.Name,
			Type:      gs.Type,
			Stage:     string(declared),
			Action:    string(gs.EffectiveAction()),
			OnError:   string(gs.EffectiveOnError(failClosed)),
			Enabled:   gs.IsEnabled(),
			Threshold: gs.Threshold(),
		})
	}
	return rules
}

func (h *Handler) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Conversations == nil {
		writeError(w, http.StatusNotImplemented, "conversation store not configured")
		return
	}

	var req check.OpenConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	kind := conversation.Kind(req.Kind)
	if req.Kind == "" {
		kind = conversation.KindHumanAI
	}

	conv, err := h.cfg.Conversations.Open(kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, check.OpenConversationResponse{
		ConversationID: conv.ID(),
		Kind:           string(conv.Kind()),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, check.ErrorResponse{Error: msg})
}
