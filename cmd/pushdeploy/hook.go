package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pushdeploy/internal/hooks"
	"pushdeploy/internal/security"
)

var (
	hookRepo    string
	hookBaseURL string
	githubToken string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage GitHub webhooks",
}

var hookCreateCmd = &cobra.Command{
	Use:   "create PROJECT",
	Short: "Register the push webhook of a project on GitHub",
	Long: `Register a push webhook on a GitHub repository that delivers to this server.

The webhook posts JSON to <url>/webhook/<project> signed with the project's
secret_token. An existing webhook with the same URL is left unchanged.`,
	Example: `  pushdeploy hook create webapp --repo octocat/webapp --url https://deploy.example.com`,
	Args:    cobra.ExactArgs(1),
	RunE:    runHookCreate,
}

func init() {
	hookCreateCmd.Flags().StringVar(&hookRepo, "repo", "", "GitHub repository (owner/repo)")
	hookCreateCmd.Flags().StringVar(&hookBaseURL, "url", getEnvOrDefault("PUSHDEPLOY_PUBLIC_URL", ""), "Public base URL of this server")
	hookCreateCmd.Flags().StringVar(&githubToken, "github-token", "", "GitHub token with admin:repo_hook scope (default $GITHUB_TOKEN)")
	_ = hookCreateCmd.MarkFlagRequired("repo")

	hookCmd.AddCommand(hookCreateCmd)
}

func runHookCreate(cmd *cobra.Command, args []string) error {
	projectName := args[0]
	if err := security.ValidateProjectName(projectName); err != nil {
		return err
	}
	if hookBaseURL == "" {
		return fmt.Errorf("--url is required (or set PUSHDEPLOY_PUBLIC_URL)")
	}

	_, registry, err := loadRegistry()
	if err != nil {
		return err
	}
	proj, err := registry.Get(projectName)
	if err != nil {
		return err
	}

	token := githubToken
	if token == "" {
		token = getEnvOrDefault("GITHUB_TOKEN", "")
	}

	registrar, err := hooks.NewRegistrar(cmd.Context(), token)
	if err != nil {
		return err
	}

	webhookURL := hooks.WebhookURL(hookBaseURL, proj.Name)
	result, err := registrar.Ensure(cmd.Context(), hookRepo, webhookURL, proj.Secret)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Created {
		fmt.Fprintf(out, "Created webhook %d on %s -> %s\n", result.ID, hookRepo, result.URL)
	} else {
		fmt.Fprintf(out, "Webhook %d on %s already delivers to %s\n", result.ID, hookRepo, result.URL)
	}
	return nil
}
