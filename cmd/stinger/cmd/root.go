// Package cmd provides the CLI commands for Stinger.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/virtualsteve-star/stinger-sub004/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stinger",
	Short: "Stinger - LLM guardrail engine",
	Long: `Stinger is a guardrail engine for LLM applications.

It runs ordered detector pipelines over user prompts and model responses:
PII and prompt-injection patterns, toxicity, topic filters, compound
scoring rules, CEL expressions, and model-assisted classifiers behind a
resilience layer. Blocked content never reaches the model (or the user);
every decision is recorded in a PII-redacted audit trail.

Quick start:
  1. Optionally create a config file: stinger.yaml
  2. Run: stinger serve

Configuration:
  Config is loaded from stinger.yaml in the current directory,
  $HOME/.stinger/, or /etc/stinger/.

  Environment variables can override config values with the STINGER_ prefix.
  Example: STINGER_SERVER_HTTP_ADDR=:8600

Commands:
  serve       Start the guardrail HTTP server
  check       Run a one-shot content check against a preset
  presets     List the embedded pipeline presets
  hash-key    Generate SHA256 hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stinger.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
