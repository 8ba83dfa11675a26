package security

import (
	"fmt"
	"slices"
	"strings"
)

// shellOperators only mean something to a shell when they stand alone as a
// word. Commands run without a shell, so such an argument would reach the
// program literally instead of chaining or redirecting.
var shellOperators = []string{";", "|", "||", "&", "&&", ">", ">>", "<", "<<"}

// shellExpansions need a shell to be evaluated wherever they appear.
var shellExpansions = []string{"`", "$("}

// ValidateCommand checks a configured command before it is accepted.
// A command is an explicit argument list: the first element is the program,
// the rest are literal arguments. Arguments that only work through a shell
// are rejected; literal text such as "error|warn" or "%H $s" is allowed.
func ValidateCommand(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	if strings.TrimSpace(cmdParts[0]) == "" {
		return fmt.Errorf("program name cannot be empty")
	}

	if strings.ContainsAny(cmdParts[0], " \t") {
		return fmt.Errorf("program name %q contains whitespace, give each argument as a separate list item", cmdParts[0])
	}

	for i, arg := range cmdParts {
		if slices.Contains(shellOperators, arg) {
			return fmt.Errorf("argument %d is the shell operator %q, commands do not run in a shell", i, arg)
		}
		if expansion, ok := requiresShell(arg); ok {
			return fmt.Errorf("argument %d needs shell expansion %q: %s", i, expansion, arg)
		}
	}

	return nil
}

// requiresShell reports the first shell expansion found in s.
func requiresShell(s string) (string, bool) {
	for _, expansion := range shellExpansions {
		if strings.Contains(s, expansion) {
			return expansion, true
		}
	}
	return "", false
}
