/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective resilience settings",
	Long: `Print the resilience settings after defaults, GRIMNIR_RESILIENCE_FILE and
GRIMNIR_* overrides are applied, in the YAML form the file accepts.

Examples:
  # Check what a display will run with
  GRIMNIR_STALL_HARD_MS=6000 grimnirdisplay config
`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Resilience)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	fmt.Fprintf(os.Stdout, "# display %s, event bus %s, database %s\n", cfg.DisplayID, cfg.EventBus, cfg.DBBackend)
	_, err = os.Stdout.Write(out)
	return err
}
