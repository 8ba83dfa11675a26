package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"pushdeploy/pkg/fileutil"
)

// Template names
const (
	Email      = "email"
	Slack      = "slack"
	Mattermost = "mattermost"
)

//go:embed builtin/*.tmpl
var builtin embed.FS

// GetTemplatePaths returns the override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	return fileutil.DefaultConfigPaths(filepath.Join("templates", templateName+".tmpl"))
}

// GetTemplate returns the raw template content by name.
// An operator-provided file wins over the built-in copy:
// 1. ./templates/<name>.tmpl
// 2. ./config/templates/<name>.tmpl
// 3. /etc/pushdeploy/templates/<name>.tmpl
// 4. built-in
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	if path := fileutil.FirstExisting(GetTemplatePaths(name)); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
		return string(content), nil
	}

	content, err := builtin.ReadFile("builtin/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("built-in template missing: %s", name)
	}
	return string(content), nil
}

// Render renders a template using Go's text/template package.
// The data must be a struct or map that can be used with Go templates.
func Render(templateName string, data interface{}) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateName).Option("missingkey=zero").Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		Email,
		Slack,
		Mattermost,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	return slices.Contains(ListTemplates(), name)
}
