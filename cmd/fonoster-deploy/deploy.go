// ABOUTME: The deploy command: submit a manifest and follow the rollout
// ABOUTME: Prints one colored line per progress stage from the service

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/youngnishant/fonoster/deploy"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a voice application from its manifest",
	Long: `Reads the application manifest, submits a deployment to the configured
service, and streams rollout progress until it completes or fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		artifactRef, _ := cmd.Flags().GetString("ref")

		cfg, err := loadCLIConfig(cmd)
		if err != nil {
			return err
		}

		m, err := deploy.LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		client, err := deploy.Dial(cfg.Server.Addr, deploy.WithToken(cfg.Server.Token))
		if err != nil {
			return err
		}
		defer client.Close()

		stream, err := client.Deploy(cmd.Context(), deploy.DeployRequest{
			Manifest:    m,
			ArtifactRef: artifactRef,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Deploying %s to %s\n\n", m.Name, cfg.Server.Addr)

		final, err := deploy.Drain(stream, printProgress)
		if err != nil {
			return err
		}

		fmt.Println()
		green := color.New(color.FgGreen)
		green.Printf("  ✓ Deployed %s", m.Name)
		if final.Ref != "" {
			fmt.Printf(" (%s)", final.Ref)
		}
		fmt.Println()
		return nil
	},
}

func printProgress(p deploy.Progress) {
	var c *color.Color
	switch p.Stage {
	case deploy.StageCompleted:
		c = color.New(color.FgGreen)
	case deploy.StageFailed:
		c = color.New(color.FgRed)
	default:
		c = color.New(color.FgCyan)
	}

	c.Printf("  ▶ %-10s", p.Stage)
	if p.Message != "" {
		fmt.Printf(" %s", p.Message)
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringP("manifest", "m", "fonoster.yaml", "Path to the application manifest")
	deployCmd.Flags().String("ref", "", "Previously uploaded artifact reference")
}
