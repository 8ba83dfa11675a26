package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/samber/lo"
)

// DefaultWaitDelay bounds how long Run waits for output pipes after the
// process has been killed (a grandchild may still hold them open).
const DefaultWaitDelay = 2 * time.Second

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value".
	// A nil Env inherits the environment of the current process.
	Env []string

	// CombinedOutput determines if stdout and stderr are combined.
	CombinedOutput bool

	// Output receives stdout and stderr as the command produces them.
	// When set, nothing is buffered in the Result and CombinedOutput is ignored.
	Output io.Writer
}

// Result contains the result of a command execution.
type Result struct {
	// Stdout is the standard output (only if CombinedOutput is false).
	Stdout []byte

	// Stderr is the standard error (only if CombinedOutput is false).
	Stderr []byte

	// Output is the combined stdout and stderr (only if CombinedOutput is true).
	Output []byte

	// ExitCode is the exit code of the command, -1 if it was killed or never started.
	ExitCode int

	// TimedOut is set when the command was killed because Timeout elapsed.
	TimedOut bool

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments)
// and is never passed through a shell.
// A non-nil Result is returned whenever the command was attempted.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.WaitDelay = DefaultWaitDelay

	start := time.Now()

	result := &Result{ExitCode: -1}
	var err error

	switch {
	case opts.Output != nil:
		// The same writer on both streams is written by a single goroutine.
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
		err = cmd.Run()
	case opts.CombinedOutput:
		result.Output, err = cmd.CombinedOutput()
	default:
		result.Stdout, err = cmd.Output()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Stderr = exitErr.Stderr
		}
	}

	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return result, fmt.Errorf("command timed out after %s: %w", opts.Timeout, ctx.Err())
	}

	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["git", "commit", "-m", "my message"] -> "git commit -m 'my message'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if part == "" || strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive information from command output.
// This is useful for logging command output without exposing secrets.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range lo.Compact(secrets) {
		sanitized = strings.ReplaceAll(sanitized, secret, RedactedMarker)
	}
	return []byte(sanitized)
}
