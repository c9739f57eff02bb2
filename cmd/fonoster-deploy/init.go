// ABOUTME: The init command: write a starter application manifest
// ABOUTME: Refuses to overwrite an existing manifest unless forced

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterManifest = `# fonoster application manifest
# Generated by fonoster-deploy init

name: my-voice-app
description: Voice application
entry: main

# Environment variables injected at run time:
# env:
#   GREETING: hello
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter manifest in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(output); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		}

		if err := os.WriteFile(output, []byte(starterManifest), 0644); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}

		fmt.Printf("Wrote %s\n", output)
		fmt.Println("\nNext steps:")
		fmt.Println("  1. Edit the manifest name and description")
		fmt.Println("  2. fonoster-deploy deploy --ref <artifact>")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringP("output", "o", "fonoster.yaml", "Manifest file to write")
	initCmd.Flags().Bool("force", false, "Overwrite an existing manifest")
}
