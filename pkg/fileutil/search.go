package fileutil

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is the system-wide configuration directory.
const SystemConfigDir = "/etc/pushdeploy"

// DefaultConfigPaths returns the locations searched for each name, in order:
// ./<name>, ./config/<name>, /etc/pushdeploy/<name>. Names may contain
// subdirectories such as "templates/email.tmpl".
func DefaultConfigPaths(names ...string) []string {
	paths := make([]string, 0, len(names)*3)
	for _, name := range names {
		paths = append(paths,
			filepath.Join(".", name),
			filepath.Join(".", "config", name),
			filepath.Join(SystemConfigDir, name),
		)
	}
	return paths
}

// FirstExisting returns the first path naming a regular file, or "".
func FirstExisting(paths []string) string {
	for _, path := range paths {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
