package project

import (
	"time"

	"pushdeploy/internal/notify"
)

// Project represents a validated deployment project configuration
type Project struct {
	Name           string
	Directory      string
	Secret         string
	TargetBranch   string
	Commands       [][]string
	CommandTimeout time.Duration
	MaxOutputBytes int
	// Environment holds sorted KEY=value pairs added to every command.
	Environment   []string
	Notifications notify.Destinations
}

// MatchesRef checks if a git ref is the project's target branch
func (p *Project) MatchesRef(ref string) bool {
	return ref == p.TargetBranch
}

// MinRedactLength is the shortest secret replaced in command output.
// Shorter values occur in ordinary text and redacting them would mangle it.
const MinRedactLength = 8

// Secrets returns the configured values that must never appear in output.
func (p *Project) Secrets() []string {
	if len(p.Secret) < MinRedactLength {
		return nil
	}
	return []string{p.Secret}
}

// ProjectConfig represents one project entry in the configuration file
type ProjectConfig struct {
	Name           string              `yaml:"name" toml:"name"`
	Directory      string              `yaml:"directory" toml:"directory"`
	SecretToken    string              `yaml:"secret_token" toml:"secret_token"`
	TargetBranch   string              `yaml:"target_branch" toml:"target_branch"`
	Commands       [][]string          `yaml:"commands" toml:"commands"`
	CommandTimeout int                 `yaml:"command_timeout" toml:"command_timeout"`
	MaxOutputBytes int                 `yaml:"max_output_bytes" toml:"max_output_bytes"`
	Environment    map[string]string   `yaml:"environment" toml:"environment"`
	Notifications  NotificationsConfig `yaml:"notifications" toml:"notifications"`
}

// NotificationsConfig lists the destinations a project reports to.
type NotificationsConfig struct {
	Email             string `yaml:"email" toml:"email"`
	SlackWebhook      string `yaml:"slack_webhook" toml:"slack_webhook"`
	MattermostWebhook string `yaml:"mattermost_webhook" toml:"mattermost_webhook"`
}

// Config represents the root configuration structure
type Config struct {
	Projects map[string]ProjectConfig `yaml:"projects" toml:"projects"`
}
