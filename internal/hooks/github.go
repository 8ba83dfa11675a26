// Package hooks registers pushdeploy webhooks on GitHub repositories.
package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"pushdeploy/internal/security"
)

// Result describes the webhook found or created by Ensure.
type Result struct {
	ID      int64
	URL     string
	Created bool
}

// Registrar manages repository webhooks through the GitHub API.
type Registrar struct {
	client *github.Client
}

// NewRegistrar creates a registrar authenticated with a personal access token.
func NewRegistrar(ctx context.Context, token string) (*Registrar, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitHub token is required (use --github-token or GITHUB_TOKEN)")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewRegistrarWithClient(github.NewClient(oauth2.NewClient(ctx, ts))), nil
}

// NewRegistrarWithClient wraps an existing GitHub client.
func NewRegistrarWithClient(client *github.Client) *Registrar {
	return &Registrar{client: client}
}

// WebhookURL returns the delivery URL of a project below the public base URL.
func WebhookURL(baseURL, projectName string) string {
	return strings.TrimRight(baseURL, "/") + "/webhook/" + projectName
}

// Ensure makes sure ownerRepo has an active push webhook delivering JSON
// to webhookURL signed with secret. An existing hook with the same URL is
// left untouched.
func (r *Registrar) Ensure(ctx context.Context, ownerRepo, webhookURL, secret string) (*Result, error) {
	if err := security.ValidateOwnerRepo(ownerRepo); err != nil {
		return nil, err
	}
	owner, repo, _ := strings.Cut(ownerRepo, "/")

	existing, err := r.find(ctx, owner, repo, webhookURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{ID: existing.GetID(), URL: webhookURL}, nil
	}

	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: github.Bool(true),
		Config: map[string]interface{}{
			"url":          webhookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}

	hook, _, err := r.client.Repositories.CreateHook(ctx, owner, repo, hookReq)
	if err != nil {
		return nil, fmt.Errorf("creating webhook: %w", err)
	}

	return &Result{ID: hook.GetID(), URL: webhookURL, Created: true}, nil
}

// find pages through the repository's hooks looking for webhookURL.
func (r *Registrar) find(ctx context.Context, owner, repo, webhookURL string) (*github.Hook, error) {
	opts := &github.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := r.client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("repository %s/%s not found or token lacks admin:repo_hook scope", owner, repo)
			}
			return nil, fmt.Errorf("listing webhooks: %w", err)
		}

		for _, hook := range hooks {
			if url, ok := hook.Config["url"].(string); ok && url == webhookURL {
				return hook, nil
			}
		}

		if resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}
