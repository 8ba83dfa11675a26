package deployment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"pushdeploy/pkg/cmdutil"
)

// TruncationMarker is appended to output that exceeded the size cap.
const TruncationMarker = "\n...[output truncated]"

// ErrCommandTimeout marks a command that was killed after running too long.
var ErrCommandTimeout = errors.New("command timed out")

// CommandError describes the command that stopped a deployment.
type CommandError struct {
	Index    int
	Command  []string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d (%s) failed: %v", e.Index+1, cmdutil.FormatCommand(e.Command), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// StepResult records one executed command.
type StepResult struct {
	Command  []string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Result is the outcome of running a project's command list.
type Result struct {
	// ID identifies one deployment across logs, responses and notifications.
	ID      string
	Project string
	Success bool
	// FailedIndex is the zero-based index of the failed command, -1 on success.
	FailedIndex   int
	FailedCommand []string
	ExitCode      int
	Output        string
	Truncated     bool
	Steps         []StepResult
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the whole run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes command lists in order and stops at the first failure.
type Runner struct {
	// Timeout bounds each command; zero means no limit.
	Timeout time.Duration

	// MaxOutputBytes caps the combined output kept; zero means no cap.
	MaxOutputBytes int

	// Env is added to the inherited process environment.
	Env []string

	// Secrets are redacted from captured output.
	Secrets []string

	Logger *slog.Logger
}

// Run executes commands in dir. It never returns an error: failures are
// recorded in the Result.
func (r *Runner) Run(ctx context.Context, dir string, commands [][]string) *Result {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	result := &Result{
		FailedIndex: -1,
		StartedAt:   time.Now(),
	}
	out := &cappedBuffer{max: r.MaxOutputBytes}

	env := append(os.Environ(), r.Env...)

	for i, cmd := range commands {
		if err := ctx.Err(); err != nil {
			r.fail(result, i, cmd, -1, fmt.Errorf("deployment aborted: %w", err))
			break
		}

		display := string(cmdutil.SanitizeOutput([]byte(cmdutil.FormatCommand(cmd)), r.Secrets))
		logger.Info("running command", "step", i+1, "command", display)
		fmt.Fprintf(out, "$ %s\n", display)

		stepOut := cmdutil.NewRedactingWriter(out, r.Secrets)
		execResult, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
			Dir:     dir,
			Timeout: r.Timeout,
			Env:     env,
			Output:  stepOut,
		}, cmd)
		_ = stepOut.Flush()
		out.endLine()

		step := StepResult{Command: cmd, ExitCode: -1}
		if execResult != nil {
			step.ExitCode = execResult.ExitCode
			step.TimedOut = execResult.TimedOut
			step.Duration = execResult.Duration
		}
		result.Steps = append(result.Steps, step)

		if err != nil {
			if step.TimedOut {
				err = fmt.Errorf("%w after %s", ErrCommandTimeout, r.Timeout)
			}
			fmt.Fprintf(out, "error: %s\n", cmdutil.SanitizeOutput([]byte(err.Error()), r.Secrets))
			logger.Warn("command failed", "step", i+1, "command", display,
				"exit_code", step.ExitCode, "duration_ms", step.Duration.Milliseconds(), "error", err)
			r.fail(result, i, cmd, step.ExitCode, err)
			break
		}

		logger.Info("command finished", "step", i+1, "command", display,
			"exit_code", step.ExitCode, "duration_ms", step.Duration.Milliseconds())
	}

	if result.FailedIndex < 0 {
		result.Success = true
		result.ExitCode = 0
	}
	result.Output = out.String()
	result.Truncated = out.truncated
	result.FinishedAt = time.Now()
	return result
}

func (r *Runner) fail(result *Result, index int, cmd []string, exitCode int, err error) {
	result.FailedIndex = index
	result.FailedCommand = cmd
	result.ExitCode = exitCode
	result.Err = &CommandError{Index: index, Command: cmd, ExitCode: exitCode, Err: err}
}

// cappedBuffer keeps at most max bytes and remembers whether it dropped any.
// Bytes past the cap are discarded as they arrive.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
	// lineOpen is set when the last byte written, kept or not, was not a newline.
	lineOpen bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if len(p) > 0 {
		b.lineOpen = p[len(p)-1] != '\n'
	}
	if b.max <= 0 {
		return b.buf.Write(p)
	}
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

// endLine terminates output that stopped mid-line.
func (b *cappedBuffer) endLine() {
	if b.lineOpen {
		_, _ = b.Write([]byte{'\n'})
	}
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + TruncationMarker
	}
	return b.buf.String()
}
