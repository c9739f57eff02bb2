// ABOUTME: Root command for the fonoster deployment CLI
// ABOUTME: Holds shared flags for config path, server address, and token

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fonoster-deploy",
	Short: "Deploy voice applications to a fonoster deployment service",
	Long: `fonoster-deploy ships voice applications described by a YAML manifest
to a deployment service and follows the rollout until it completes or fails.`,
	SilenceUsage: true,
}

// Execute runs the root command. Command errors are printed by cobra; the
// process exits non-zero on any failure.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the CLI config file (default $XDG_CONFIG_HOME/fonoster/cli.toml)")
	rootCmd.PersistentFlags().String("addr", "", "Deployment service address (overrides config)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (overrides config)")
}
