package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpapi "github.com/virtualsteve-star/stinger-sub004/internal/adapter/inbound/http"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/auditfile"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/auditsqlite"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/auditstdout"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/memory"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/prom"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/provider"
	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/state"
	"github.com/virtualsteve-star/stinger-sub004/internal/config"
	"github.com/virtualsteve-star/stinger-sub004/internal/detector"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
	"github.com/virtualsteve-star/stinger-sub004/internal/service"
	"github.com/virtualsteve-star/stinger-sub004/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the guardrail HTTP server",
	Long: `Start the Stinger guardrail engine.

The engine compiles the configured pipeline (a preset, a pipeline
document, or a document overlaying a preset) and serves it at
POST /v1/check, with /v1/rules, /v1/conversations, /health, and
/metrics alongside.

Examples:
  # Serve the basic preset on localhost
  stinger serve

  # Serve a custom pipeline document
  STINGER_PIPELINE_DOCUMENT=./pipeline.yaml stinger serve

  # Serve with a specific config file
  stinger --config /path/to/stinger.yaml serve`,
	RunE: runServe,
}

var serveTrace bool

func init() {
	serveCmd.Flags().BoolVar(&serveTrace, "trace", false, "Export OpenTelemetry traces and metrics to stdout")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)

	if file := config.ConfigFileUsed(); file != "" {
		logger.Info("loaded config", "file", file)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("stinger stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	startTime := time.Now().UTC()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "stinger",
		Version:     Version,
		Enabled:     serveTrace,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// Conversation store with the GCRA limiter behind rate checks.
	limiter := memory.NewRateLimiter()
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	convs := conversation.NewStore(
		conversation.WithLimiter(limiter),
		conversation.WithRateLimits(cfg.Conversation.RatePerMinute, cfg.Conversation.RatePerHour),
		conversation.WithTokenBudget(cfg.Conversation.TokenBudget),
	)

	// Conversation persistence is opt-in via conversation.snapshot_dir.
	var snapshots *state.SnapshotStore
	if cfg.Conversation.SnapshotDir != "" {
		snapshots, err = state.NewSnapshotStore(cfg.Conversation.SnapshotDir, logger)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		snaps, err := snapshots.LoadAll()
		if err != nil {
			return fmt.Errorf("load snapshots: %w", err)
		}
		restored := 0
		for _, snap := range snaps {
			if _, err := convs.Restore(snap); err != nil {
				logger.Warn("skipping snapshot", "conversation_id", snap.ID, "error", err)
				continue
			}
			restored++
		}
		logger.Info("conversations restored", "dir", cfg.Conversation.SnapshotDir, "count", restored)
		defer persistConversations(convs, snapshots, logger)
	}

	classifier, err := buildClassifier(cfg, logger)
	if err != nil {
		return err
	}

	breakers := resilience.NewBreakerSet(resilience.DefaultBreakerConfig(), logger)

	reg := guardrail.NewRegistry()
	if err := detector.RegisterBuiltins(reg, detector.Deps{
		Classifier:    classifier,
		Conversations: convs,
		Breakers:      breakers,
		Logger:        logger,
	}); err != nil {
		return fmt.Errorf("register detectors: %w", err)
	}

	spec, err := resolvePipeline(cfg, reg)
	if err != nil {
		return fmt.Errorf("resolve pipeline: %w", err)
	}

	// Runtime validation is warn-only: an unreachable classifier must
	// not keep the engine from starting.
	for _, warning := range config.RuntimeWarnings(ctx, spec, classifier) {
		logger.Warn(warning)
	}

	plan, err := pipeline.Compile(spec, reg)
	if err != nil {
		return fmt.Errorf("compile pipeline: %w", err)
	}

	// Audit subsystem: async, PII-redacting, never blocks a check.
	sink, err := newAuditSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("create audit sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	flushInterval, err := time.ParseDuration(cfg.Audit.FlushInterval)
	if err != nil {
		flushInterval = time.Second
		logger.Warn("invalid flush_interval, using default", "value", cfg.Audit.FlushInterval, "default", "1s")
	}

	auditSvc := service.NewAuditService(sink, logger,
		service.WithBufferCapacity(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(flushInterval),
		service.WithLostEventsPath(cfg.Audit.LostEventsPath),
	)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	promReg := prometheus.NewRegistry()
	metrics := prom.NewMetrics(promReg)
	prom.RegisterAuditGauges(promReg, auditSvc)
	prom.RegisterUptime(promReg, startTime)

	engine := pipeline.NewEngine(plan,
		pipeline.WithConversations(convs),
		pipeline.WithRecorder(auditSvc),
		pipeline.WithObserver(metrics),
		pipeline.WithLogger(logger),
	)

	stats := service.NewStatsService(engine, breakers, auditSvc, promReg)

	// Refresh the breaker state gauge between scrapes.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.ObserveBreakers(breakers.States())
			}
		}
	}()

	verifier, err := httpapi.NewKeyVerifier(cfg.Auth.APIKeys)
	if err != nil {
		return fmt.Errorf("parse auth keys: %w", err)
	}

	handler := httpapi.NewHandler(httpapi.HandlerConfig{
		Engine:        engine,
		Registry:      reg,
		Conversations: convs,
		Stats:         stats,
		Metrics:       metrics,
		Recorder:      auditSvc,
		Gatherer:      promReg,
		Logger:        logger,
	})

	mux := stdhttp.NewServeMux()
	handler.Register(mux)

	var root stdhttp.Handler = mux
	root = httpapi.AuthMiddleware(verifier)(root)
	root = httpapi.CORSMiddleware(cfg.Server.AllowedOrigins)(root)
	root = httpapi.RequestIDMiddleware(logger)(root)

	server := &stdhttp.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("stinger starting",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr,
		"pipeline", spec.Name,
		"pipeline_version", spec.Version,
		"input_guardrails", len(plan.Guardrails(guardrail.StageInput)),
		"output_guardrails", len(plan.Guardrails(guardrail.StageOutput)),
		"audit_output", cfg.Audit.Output,
		"auth", verifier.Enabled(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	return nil
}

// buildClassifier creates the provider client when one is configured.
// The API key is read from the environment through the secrets accessor
// and never appears in config files, flags, or logs.
func buildClassifier(cfg *config.Config, logger *slog.Logger) (outbound.Classifier, error) {
	if cfg.Provider.BaseURL == "" {
		return nil, nil
	}
	secrets := config.NewSecrets(cfg.Provider.APIKeyEnv)
	key, err := secrets.ProviderAPIKey()
	if err != nil {
		return nil, fmt.Errorf("provider configured but credentials missing: %w", err)
	}
	return provider.NewClient(provider.Config{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      key,
		HTTPTimeout: time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond,
	}, logger)
}

// resolvePipeline builds the active pipeline spec from config: a
// document (optionally overlaying a preset) or a plain preset.
func resolvePipeline(cfg *config.Config, reg *guardrail.Registry) (*pipeline.Spec, error) {
	if cfg.Pipeline.Document != "" {
		doc, err := config.ParseDocumentFile(cfg.Pipeline.Document)
		if err != nil {
			return nil, err
		}
		if doc.Preset == "" && cfg.Pipeline.Preset != "" {
			doc.Preset = cfg.Pipeline.Preset
		}
		return config.Resolve(doc, reg)
	}
	return config.PipelineFromPreset(cfg.Pipeline.Preset, reg)
}

// newAuditSink creates the audit sink selected by audit.output.
func newAuditSink(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	out := cfg.Audit.Output
	switch {
	case out == "stdout":
		return auditstdout.NewStore(), nil
	case out == "memory":
		return memory.NewAuditStore(10000), nil
	case strings.HasPrefix(out, "file://"):
		return auditfile.NewStore(auditfile.Config{
			Dir:           strings.TrimPrefix(out, "file://"),
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)
	case strings.HasPrefix(out, "sqlite://"):
		return auditsqlite.NewStore(strings.TrimPrefix(out, "sqlite://"))
	default:
		return nil, fmt.Errorf("invalid audit output: %s", out)
	}
}

// persistConversations snapshots every live conversation at shutdown.
func persistConversations(convs *conversation.Store, snapshots *state.SnapshotStore, logger *slog.Logger) {
	saved := 0
	for _, id := range convs.IDs() {
		snap, err := convs.Serialize(id)
		if err != nil {
			logger.Warn("failed to serialize conversation", "conversation_id", id, "error", err)
			continue
		}
		if err := snapshots.Save(snap); err != nil {
			logger.Warn("failed to persist conversation", "conversation_id", id, "error", err)
			continue
		}
		saved++
	}
	logger.Info("conversations persisted", "count", saved)
}

// newLogger builds the process logger from server config.
func newLogger(cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
