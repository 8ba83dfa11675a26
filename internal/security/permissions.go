package security

import (
	"fmt"
	"os"
	"strings"
)

// PermLogFile is the mode of the deployment log, which records command
// output: owner rw, group r, nothing for others.
const PermLogFile os.FileMode = 0640

const (
	otherRead  os.FileMode = 0o004
	otherWrite os.FileMode = 0o002
)

// IsWorldReadable reports whether users outside the owner and group can read.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&otherRead != 0
}

// IsWorldWritable reports whether users outside the owner and group can write.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&otherWrite != 0
}

// ValidateSecurePermissions fails when a file holding secrets is accessible
// to other users. The error names every kind of access granted.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	perm := info.Mode().Perm()

	var access []string
	if IsWorldReadable(perm) {
		access = append(access, "world-readable")
	}
	if IsWorldWritable(perm) {
		access = append(access, "world-writable")
	}
	if len(access) == 0 {
		return nil
	}

	return fmt.Errorf("%s is %s (mode %04o), restrict it with chmod 600", path, strings.Join(access, " and "), perm)
}
