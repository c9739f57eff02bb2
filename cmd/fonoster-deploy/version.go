// ABOUTME: The version command for the deployment CLI
// ABOUTME: Version is stamped by goreleaser at build time

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fonoster-deploy",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fonoster-deploy version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
