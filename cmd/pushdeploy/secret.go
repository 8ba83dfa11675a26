package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pushdeploy/internal/security"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret",
	Long:  `Print a new random secret suitable for a project's secret_token and the GitHub webhook.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}
