package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/virtualsteve-star/stinger-sub004/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the embedded pipeline presets",
	Long: `List the pipeline presets shipped with the engine.

A preset can be selected with pipeline.preset in stinger.yaml, overlaid
by a pipeline document, or named per request via the "preset" field of
POST /v1/check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range config.PresetNames() {
			spec, err := config.Preset(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-18s v%-4s %d input / %d output guardrails\n",
				name, spec.Version, len(spec.Input), len(spec.Output))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
