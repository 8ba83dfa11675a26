package project

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"pushdeploy/internal/notify"
	"pushdeploy/internal/security"
)

const (
	DefaultCommandTimeout = 300 // seconds
	DefaultMaxOutputBytes = 64 * 1024
)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ConfigError collects every problem found in one project entry.
type ConfigError struct {
	Project  string
	Problems []string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration for project '%s':", e.Project)
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

// LoadConfig loads and validates the configuration file at configPath.
// YAML and JSON files are decoded with the YAML decoder, files ending in
// .toml with the TOML decoder. Any invalid project makes the whole load fail.
func LoadConfig(configPath string) (*Registry, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	entries, err := decodeConfig(configPath, data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("config file %s defines no projects", configPath)
	}

	var warnings []string
	if err := security.ValidateSecurePermissions(configPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("config file holds webhook secrets: %v", err))
	}

	names := lo.Keys(entries)
	sort.Strings(names)

	var errs []error
	projects := make(map[string]*Project, len(entries))
	for _, name := range names {
		problems := ValidateProjectConfig(name, entries[name])
		if len(problems) > 0 {
			errs = append(errs, &ConfigError{Project: name, Problems: problems})
			continue
		}

		p, err := buildProject(name, entries[name])
		if err != nil {
			errs = append(errs, &ConfigError{Project: name, Problems: []string{err.Error()}})
			continue
		}
		if weakness := security.SecretWeakness(p.Secret); weakness != "" {
			warning := fmt.Sprintf("project '%s': secret_token is weak (%s)", name, weakness)
			if len(p.Secret) < MinRedactLength {
				warning += fmt.Sprintf(", and shorter than %d characters so it is not redacted from output", MinRedactLength)
			}
			warnings = append(warnings, warning)
		}
		projects[name] = p
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	r := NewRegistry(projects)
	r.warnings = warnings
	return r, nil
}

// decodeConfig accepts either a top-level "projects" mapping or a bare
// mapping of project name to project.
func decodeConfig(configPath string, data []byte) (map[string]ProjectConfig, error) {
	isTOML := strings.EqualFold(filepath.Ext(configPath), ".toml")

	var config Config
	if isTOML {
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Projects != nil {
		return config.Projects, nil
	}

	var bare map[string]ProjectConfig
	if isTOML {
		if _, err := toml.Decode(string(data), &bare); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return bare, nil
}

func buildProject(name string, config ProjectConfig) (*Project, error) {
	directory, err := filepath.EvalSymlinks(filepath.Clean(config.Directory))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}

	timeout := config.CommandTimeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}

	maxOutput := config.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = DefaultMaxOutputBytes
	}

	env := make([]string, 0, len(config.Environment))
	for k, v := range config.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	destinations := notify.Destinations{
		notify.Email:      strings.TrimSpace(config.Notifications.Email),
		notify.Slack:      strings.TrimSpace(config.Notifications.SlackWebhook),
		notify.Mattermost: strings.TrimSpace(config.Notifications.MattermostWebhook),
	}

	return &Project{
		Name:           name,
		Directory:      directory,
		Secret:         config.SecretToken,
		TargetBranch:   security.NormalizeRef(config.TargetBranch),
		Commands:       config.Commands,
		CommandTimeout: time.Duration(timeout) * time.Second,
		MaxOutputBytes: maxOutput,
		Environment:    env,
		Notifications: lo.PickBy(destinations, func(_ notify.Kind, dest string) bool {
			return dest != ""
		}),
	}, nil
}

// ValidateProjectConfig validates a single project configuration and
// returns every problem found.
func ValidateProjectConfig(name string, config ProjectConfig) []string {
	var problems []string

	if err := security.ValidateProjectName(name); err != nil {
		problems = append(problems, err.Error())
	}
	if config.Name != "" && config.Name != name {
		problems = append(problems, fmt.Sprintf("name '%s' does not match its key", config.Name))
	}

	// Validate directory
	if config.Directory == "" {
		problems = append(problems, "missing required 'directory' field")
	} else if dir, err := security.SanitizePath(config.Directory); err != nil {
		problems = append(problems, fmt.Sprintf("directory: %v", err))
	} else {
		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			problems = append(problems, fmt.Sprintf("directory does not exist: '%s'", dir))
		case err != nil:
			problems = append(problems, fmt.Sprintf("cannot stat directory '%s': %v", dir, err))
		case !info.IsDir():
			problems = append(problems, fmt.Sprintf("directory is not a directory: '%s'", dir))
		}
	}

	if config.SecretToken == "" {
		problems = append(problems, "missing required 'secret_token' field")
	}

	// Validate target branch
	if config.TargetBranch == "" {
		problems = append(problems, "missing required 'target_branch' field")
	} else if err := security.ValidateRef(security.NormalizeRef(config.TargetBranch)); err != nil {
		problems = append(problems, fmt.Sprintf("target_branch: %v", err))
	}

	// Validate commands
	if len(config.Commands) == 0 {
		problems = append(problems, "at least one command must be specified in 'commands'")
	}
	for i, cmd := range config.Commands {
		if err := security.ValidateCommand(cmd); err != nil {
			problems = append(problems, fmt.Sprintf("commands[%d]: %v", i, err))
		}
	}

	if config.CommandTimeout < 0 {
		problems = append(problems, fmt.Sprintf("command_timeout must be a positive integer, got %d", config.CommandTimeout))
	}
	if config.MaxOutputBytes < 0 {
		problems = append(problems, fmt.Sprintf("max_output_bytes must be a positive integer, got %d", config.MaxOutputBytes))
	}

	for key := range config.Environment {
		if !envKeyPattern.MatchString(key) {
			problems = append(problems, fmt.Sprintf("environment key %q is not a valid variable name", key))
		}
	}

	// Validate notifications
	if email := strings.TrimSpace(config.Notifications.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			problems = append(problems, fmt.Sprintf("notifications.email: %v", err))
		}
	}
	for field, raw := range map[string]string{
		"slack_webhook":      config.Notifications.SlackWebhook,
		"mattermost_webhook": config.Notifications.MattermostWebhook,
	} {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		if err := validateWebhookURL(raw); err != nil {
			problems = append(problems, fmt.Sprintf("notifications.%s: %v", field, err))
		}
	}

	sort.Strings(problems)
	return problems
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
