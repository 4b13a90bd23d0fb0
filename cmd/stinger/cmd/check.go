package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/virtualsteve-star/stinger-sub004/internal/adapter/outbound/memory"
	"github.com/virtualsteve-star/stinger-sub004/internal/config"
	"github.com/virtualsteve-star/stinger-sub004/internal/detector"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/guardrail"
	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pipeline"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

var checkCmd = &cobra.Command{
	Use:   "check [content]",
	Short: "Run a one-shot content check against a preset",
	Long: `Check a piece of content against a preset pipeline without
starting the server. Content is read from the argument, or from stdin
when no argument is given.

The exit code is 0 when the content passes and 2 when it is blocked,
so the command composes with shell conditionals.

Examples:
  stinger check "My SSN is 123-45-6789"
  stinger check --preset medical --stage output "you should take 50mg per day"
  cat response.txt | stinger check --stage output --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

var (
	checkPreset string
	checkStage  string
	checkJSON   bool
)

func init() {
	checkCmd.Flags().StringVar(&checkPreset, "preset", "basic", "Preset pipeline to check against")
	checkCmd.Flags().StringVar(&checkStage, "stage", "input", `Pipeline stage: "input" or "output"`)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the full result as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkStage != "input" && checkStage != "output" {
		return fmt.Errorf(`invalid stage %q: must be "input" or "output"`, checkStage)
	}

	var content string
	if len(args) == 1 {
		content = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	if content == "" {
		return fmt.Errorf("no content to check")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	classifier, err := buildClassifier(cfg, logger)
	if err != nil {
		return err
	}

	convs := conversation.NewStore(conversation.WithLimiter(memory.NewRateLimiter()))
	reg := guardrail.NewRegistry()
	if err := detector.RegisterBuiltins(reg, detector.Deps{
		Classifier:    classifier,
		Conversations: convs,
		Breakers:      resilience.NewBreakerSet(resilience.DefaultBreakerConfig(), logger),
		Logger:        logger,
	}); err != nil {
		return fmt.Errorf("register detectors: %w", err)
	}

	spec, err := config.PipelineFromPreset(checkPreset, reg)
	if err != nil {
		return err
	}
	plan, err := pipeline.Compile(spec, reg)
	if err != nil {
		return fmt.Errorf("compile preset %q: %w", checkPreset, err)
	}
	engine := pipeline.NewEngine(plan, pipeline.WithLogger(logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	gc := guardrail.Content{Text: content}
	var agg pipeline.AggregateResult
	if checkStage == "input" {
		agg, err = engine.CheckInput(ctx, "", gc)
	} else {
		agg, err = engine.CheckOutput(ctx, "", gc)
	}
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(agg); err != nil {
			return err
		}
	} else {
		printVerdict(agg)
	}

	if agg.Blocked {
		os.Exit(2)
	}
	return nil
}

func printVerdict(agg pipeline.AggregateResult) {
	if agg.Blocked {
		fmt.Printf("BLOCKED (confidence %.2f)\n", agg.Confidence)
		for _, reason := range agg.Reasons {
			fmt.Printf("  reason:    %s\n", reason)
		}
	} else {
		fmt.Println("PASS")
	}
	for _, w := range agg.Warnings {
		fmt.Printf("  warning:   %s\n", w)
	}
	for _, ind := range agg.Indicators {
		fmt.Printf("  indicator: %s\n", ind)
	}
}
