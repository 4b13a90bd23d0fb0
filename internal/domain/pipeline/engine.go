package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
)

// Synthetic aggregate reasons not tied to a single detector verdict.
const (
	ReasonDeadline = "deadline"
)

// AggregateResult is the verdict of one pipeline call.
type AggregateResult struct {
	// Blocked is true iff any non-overridden block fired.
	Blocked bool
	// Confidence is the max among blocking detectors, or the max overall
	// when unblocked.
	Confidence float64
	// Reasons lists, in order, the detector names (or synthetic reasons)
	// that contributed to the verdict.
	Reasons []string
	// Warnings lists detectors that fired under action=warn.
	Warnings []string
	// Indicators merges the indicators of every contributing detector.
	Indicators []string
	// Results holds every detector result produced before the call
	// terminated, in execution order.
	Results []guardrail.Result
	// Stage the call evaluated.
	Stage guardrail.Stage
	// ConversationID, empty for stateless calls.
	ConversationID string
}

// Observer receives engine telemetry. Implementations must be cheap and
// non-blocking; the engine calls them inline.
type Observer interface {
	GuardrailResult(stage guardrail.Stage, name, typ string, r guardrail.Result)
	GuardrailError(stage guardrail.Stage, name, typ string)
	PipelineDone(stage guardrail.Stage, blocked bool, latency time.Duration)
}

// NopObserver ignores all telemetry.
type NopObserver struct{}

func (NopObserver) GuardrailResult(guardrail.Stage, string, string, guardrail.Result) {}
func (NopObserver) GuardrailError(guardrail.Stage, string, string)                    {}
func (NopObserver) PipelineDone(guardrail.Stage, bool, time.Duration)                 {}

// Engine runs the input and output pipelines against an atomically
// swappable plan. Many calls run concurrently; each call is sequential
// internally and completes against the plan it started with.
type Engine struct {
	plan          atomic.Pointer[Plan]
	conversations *conversation.Store
	recorder      audit.Recorder
	observer      Observer
	logger        *slog.Logger
	tracer        trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConversations attaches the conversation store for stateful calls.
func WithConversations(store *conversation.Store) EngineOption {
	return func(e *Engine) { e.conversations = store }
}

// WithRecorder attaches the audit recorder.
func WithRecorder(r audit.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver attaches the metrics observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine around an initial plan.
func NewEngine(plan *Plan, opts ...EngineOption) *Engine {
	e := &Engine{
		recorder: audit.NopRecorder{},
		observer: NopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("pipeline"),
	}
	e.plan.Store(plan)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan returns the active plan.
func (e *Engine) Plan() *Plan { return e.plan.Load() }

// Swap atomically replaces the active plan. In-flight calls complete
// against the plan they loaded; the swap is recorded in the audit trail.
func (e *Engine) Swap(plan *Plan) {
	old := e.plan.Swap(plan)

	event := audit.New(audit.EventConfigChange)
	event.Metadata = map[string]any{
		"pipeline": plan.spec.Name,
		"version":  plan.spec.Version,
	}
	if old != nil {
		event.Metadata["previous_version"] = old.spec.Version
	}
	e.recorder.Record(event)
	e.logger.Info("pipeline plan swapped",
		"pipeline", plan.spec.Name,
		"version", plan.spec.Version,
		"input_guardrails", len(plan.input),
		"output_guardrails", len(plan.output),
	)
}

// SetGuardrailEnabled toggles one guardrail by name and swaps in the
// recompiled plan. The whole new plan is validated before the swap;
// failure leaves the active plan untouched.
func (e *Engine) SetGuardrailEnabled(name string, enabled bool, reg *guardrail.Registry) error {
	spec := e.plan.Load().Spec().Clone()
	gs := spec.Find(name)
	if gs == nil {
		return fmt.Errorf("guardrail %q not found", name)
	}
	gs.Enabled = &enabled

	plan, err := Compile(spec, reg)
	if err != nil {
		return fmt.Errorf("recompile after toggling %q: %w", name, err)
	}
	e.Swap(plan)
	return nil
}

// CheckInput runs the input pipeline over a prompt. conversationID may
// be empty for stateless calls.
func (e *Engine) CheckInput(ctx context.Context, conversationID string, content guardrail.Content) (AggregateResult, error) {
	return e.check(ctx, guardrail.StageInput, conversationID, content)
}

// CheckOutput runs the output pipeline over a model response and, on a
// stateful call, completes the pending turn.
func (e *Engine) CheckOutput(ctx context.Context, conversationID string, content guardrail.Content) (AggregateResult, error) {
	return e.check(ctx, guardrail.StageOutput, conversationID, content)
}

func (e *Engine) check(ctx context.Context, stage guardrail.Stage, conversationID string, content guardrail.Content) (AggregateResult, error) {
	plan := e.plan.Load()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "pipeline."+string(stage),
		trace.WithAttributes(
			attribute.String("pipeline.name", plan.spec.Name),
			attribute.String("pipeline.stage", string(stage)),
		))
	defer span.End()

	cc, err := e.checkContext(stage, conversationID)
	if err != nil {
		return AggregateResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, plan.spec.Defaults.CallDeadline())
	defer cancel()

	e.recordContent(stage, conversationID, content.Text)

	agg := e.run(callCtx, plan, stage, content, cc)
	agg.Stage = stage
	agg.ConversationID = conversationID

	e.recordTurn(stage, conversationID, content.Text, &agg)

	latency := time.Since(start)
	e.observer.PipelineDone(stage, agg.Blocked, latency)
	span.SetAttributes(
		attribute.Bool("pipeline.blocked", agg.Blocked),
		attribute.StringSlice("pipeline.reasons", agg.Reasons),
	)
	if agg.Blocked {
		e.logger.Info("content blocked",
			"stage", stage,
			"conversation", conversationID,
			"reasons", agg.Reasons,
			"latency", latency,
		)
	}
	return agg, nil
}

// checkContext resolves the conversation and snapshots its history, so
// every detector in this call observes the same view.
func (e *Engine) checkContext(stage guardrail.Stage, conversationID string) (*guardrail.CheckContext, error) {
	cc := &guardrail.CheckContext{Stage: stage}
	if conversationID == "" || e.conversations == nil {
		return cc, nil
	}

	conv, err := e.conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	history, err := e.conversations.History(conversationID, conversation.Window{Strategy: conversation.StrategyRecent})
	if err != nil {
		return nil, err
	}
	cc.Conversation = conv
	cc.History = history
	return cc, nil
}

// run executes the stage's guardrails in plan order.
func (e *Engine) run(ctx context.Context, plan *Plan, stage guardrail.Stage, content guardrail.Content, cc *guardrail.CheckContext) AggregateResult {
	var agg AggregateResult

	for _, b := range plan.list(stage) {
		if ctx.Err() != nil {
			e.markDeadline(&agg, cc)
			return agg
		}

		result, err := e.invoke(ctx, b, content, cc)
		if err != nil {
			if ctx.Err() != nil {
				// The pipeline deadline expired while the detector ran.
				e.markDeadline(&agg, cc)
				return agg
			}
			e.observer.GuardrailError(stage, b.name, b.typ)
			e.logger.Warn("guardrail error",
				"guardrail", b.name,
				"type", b.typ,
				"stage", stage,
				"on_error", b.onError,
				"error", err,
			)
			if e.applyErrorPolicy(&agg, b, cc) {
				return agg
			}
			continue
		}

		e.observer.GuardrailResult(stage, b.name, b.typ, result)
		e.auditDecision(b.name, cc, decisionFor(b, result), result.Reason, result.Confidence, result.Indicators)
		agg.Results = append(agg.Results, result)
		if result.Confidence > agg.Confidence && !agg.Blocked {
			agg.Confidence = result.Confidence
		}
		mergeIndicators(&agg, result.Indicators)

		if !result.Blocked {
			continue
		}
		switch b.action {
		case guardrail.ActionBlock:
			agg.Blocked = true
			agg.Confidence = result.Confidence
			agg.Reasons = append(agg.Reasons, b.name)
			return agg
		case guardrail.ActionWarn:
			agg.Warnings = append(agg.Warnings, b.name)
		case guardrail.ActionAllow:
			// Monitor mode: recorded, never blocks.
		}
	}
	return agg
}

// invoke runs one detector under its own timeout and stamps identity and
// latency onto the result.
func (e *Engine) invoke(ctx context.Context, b bound, content guardrail.Content, cc *guardrail.CheckContext) (guardrail.Result, error) {
	detCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	started := time.Now()
	result, err := b.impl.Analyze(detCtx, content, cc)
	if err != nil {
		return guardrail.Result{}, err
	}
	result.GuardrailName = b.name
	result.GuardrailType = b.typ
	result.Latency = time.Since(started)
	return result, nil
}

// applyErrorPolicy maps a detector failure through its on_error policy.
// Returns true when the pipeline must terminate blocked.
func (e *Engine) applyErrorPolicy(agg *AggregateResult, b bound, cc *guardrail.CheckContext) bool {
	reason := "detector_error:" + b.name
	switch b.onError {
	case guardrail.OnErrorBlock:
		e.auditDecision(b.name, cc, "error_blocked", "detector_error", 0, nil)
		agg.Blocked = true
		agg.Confidence = 1.0
		agg.Reasons = append(agg.Reasons, reason)
		agg.Results = append(agg.Results, guardrail.Result{
			Blocked:       true,
			Confidence:    1.0,
			Risk:          guardrail.RiskHigh,
			Reason:        "detector_error",
			GuardrailName: b.name,
			GuardrailType: b.typ,
		})
		return true
	case guardrail.OnErrorWarn:
		e.auditDecision(b.name, cc, "error_warned", "detector_error", 0, nil)
		agg.Warnings = append(agg.Warnings, b.name)
	case guardrail.OnErrorAllow:
		e.auditDecision(b.name, cc, "error_allowed", "detector_error", 0, nil)
	case guardrail.OnErrorSkip:
		// Continue without recording a warning.
	}
	return false
}

// markDeadline turns deadline expiry into the synthetic block verdict.
func (e *Engine) markDeadline(agg *AggregateResult, cc *guardrail.CheckContext) {
	agg.Blocked = true
	agg.Confidence = 1.0
	agg.Reasons = append(agg.Reasons, ReasonDeadline)
	e.auditDecision("", cc, "block", ReasonDeadline, 1.0, nil)
}

func decisionFor(b bound, r guardrail.Result) string {
	if !r.Blocked {
		return "allow"
	}
	switch b.action {
	case guardrail.ActionBlock:
		return "block"
	case guardrail.ActionWarn:
		return "warn"
	default:
		return "monitor"
	}
}

func mergeIndicators(agg *AggregateResult, indicators []string) {
	for _, in := range indicators {
		dup := false
		for _, have := range agg.Indicators {
			if have == in {
				dup = true
				break
			}
		}
		if !dup {
			agg.Indicators = append(agg.Indicators, in)
		}
	}
}

// recordContent emits the content event that precedes every decision
// event of this call. Redaction happens on the audit consumer.
func (e *Engine) recordContent(stage guardrail.Stage, conversationID, text string) {
	t := audit.EventUserPrompt
	if stage == guardrail.StageOutput {
		t = audit.EventLLMResponse
	}
	event := audit.New(t)
	event.ConversationID = conversationID
	event.RedactedContent = text
	e.recorder.Record(event)
}

func (e *Engine) auditDecision(filter string, cc *guardrail.CheckContext, decision, reason string, confidence float64, indicators []string) {
	event := audit.New(audit.EventGuardrailDecision)
	event.ConversationID = cc.ConversationID()
	event.FilterName = filter
	event.Decision = decision
	event.Reason = reason
	event.Confidence = confidence
	event.Indicators = indicators
	e.recorder.Record(event)
}

// recordTurn mutates the conversation after the verdict: an input block
// records a blocked turn immediately; an input pass stashes the prompt
// until the matching output check completes the exchange. A blocked
// output withholds the response text.
func (e *Engine) recordTurn(stage guardrail.Stage, conversationID, text string, agg *AggregateResult) {
	if conversationID == "" || e.conversations == nil {
		return
	}

	switch stage {
	case guardrail.StageInput:
		if agg.Blocked {
			_, err := e.conversations.AppendTurn(conversationID, conversation.TurnInput{
				Prompt:      text,
				Blocked:     true,
				BlockReason: firstReason(agg),
			})
			if err != nil {
				e.logger.Warn("failed to record blocked turn", "conversation", conversationID, "error", err)
			}
			return
		}
		if conv, err := e.conversations.Get(conversationID); err == nil {
			conv.SetPending(text)
		}

	case guardrail.StageOutput:
		prompt := ""
		if conv, err := e.conversations.Get(conversationID); err == nil {
			prompt, _ = conv.TakePending()
		}
		in := conversation.TurnInput{Prompt: prompt, Response: text}
		if agg.Blocked {
			in.Response = ""
			in.Blocked = true
			in.BlockReason = firstReason(agg)
		}
		if _, err := e.conversations.AppendTurn(conversationID, in); err != nil {
			e.logger.Warn("failed to record turn", "conversation", conversationID, "error", err)
		}
	}
}

func firstReason(agg *AggregateResult) string {
	if len(agg.Reasons) > 0 {
		return agg.Reasons[0]
	}
	return ""
}
