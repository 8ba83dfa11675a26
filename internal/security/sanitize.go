package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	refPattern       = regexp.MustCompile(`^refs/(heads|tags)/[a-zA-Z0-9/_.-]+$`)
	projectPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	ownerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+$`)
)

// ValidateRef ensures a git ref is a fully qualified branch or tag ref
// built from safe characters.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("ref %q must look like refs/heads/<branch> and contain only a-z, A-Z, 0-9, /, _, ., -", ref)
	}
	if strings.Contains(ref, "..") || strings.HasSuffix(ref, "/") || strings.Contains(ref, "//") {
		return fmt.Errorf("ref %q is not a valid git ref", ref)
	}
	return nil
}

// NormalizeRef turns a bare branch name into a fully qualified ref.
// Refs that already start with "refs/" are returned unchanged.
func NormalizeRef(branch string) string {
	branch = strings.TrimSpace(branch)
	if branch == "" || strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

// ValidateProjectName ensures project name is safe for use in paths and URLs.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// ValidateOwnerRepo ensures a GitHub "owner/repo" string is well formed.
func ValidateOwnerRepo(ownerRepo string) error {
	if !ownerRepoPattern.MatchString(ownerRepo) {
		return fmt.Errorf("invalid owner/repo format: %q", ownerRepo)
	}
	return nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal attempts.
func SanitizePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return "", fmt.Errorf("path contains traversal elements: %s", path)
		}
	}

	return filepath.Clean(path), nil
}
