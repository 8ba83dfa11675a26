package deployment

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRunner_SuccessConcatenatesOutputInOrder(t *testing.T) {
	r := &Runner{Timeout: 5 * time.Second}

	result := r.Run(context.Background(), t.TempDir(), [][]string{
		{"echo", "first"},
		{"echo", "second"},
	})

	if !result.Success {
		t.Fatalf("Run() failed: %v\n%s", result.Err, result.Output)
	}
	want := "$ echo first\nfirst\n$ echo second\nsecond\n"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
	if result.FailedIndex != -1 || result.FailedCommand != nil || result.Err != nil {
		t.Errorf("successful run has failure fields set: %+v", result)
	}
	if len(result.Steps) != 2 {
		t.Errorf("Steps = %d, want 2", len(result.Steps))
	}
	if result.FinishedAt.Before(result.StartedAt) || result.Duration() < 0 {
		t.Error("invalid timing")
	}
}

func TestRunner_FailFast(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Timeout: 5 * time.Second}

	result := r.Run(context.Background(), dir, [][]string{
		{"touch", "a"},
		{"false"},
		{"touch", "c"},
	})

	if result.Success {
		t.Fatal("Run() should fail when a command exits non-zero")
	}
	if result.FailedIndex != 1 {
		t.Errorf("FailedIndex = %d, want 1", result.FailedIndex)
	}
	if diff := cmp.Diff([]string{"false"}, result.FailedCommand); diff != "" {
		t.Errorf("FailedCommand mismatch (-want +got):\n%s", diff)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if len(result.Steps) != 2 {
		t.Errorf("Steps = %d, want 2", len(result.Steps))
	}

	if _, err := os.Stat(filepath.Join(dir, "a")); err != nil {
		t.Error("command before the failure did not run")
	}
	if _, err := os.Stat(filepath.Join(dir, "c")); !os.IsNotExist(err) {
		t.Error("command after the failure should not run")
	}

	var cmdErr *CommandError
	if !errors.As(result.Err, &cmdErr) {
		t.Fatalf("Err = %T, want *CommandError", result.Err)
	}
	if cmdErr.Index != 1 || !strings.Contains(cmdErr.Error(), "command 2 (false)") {
		t.Errorf("CommandError = %v", cmdErr)
	}
}

func TestRunner_Timeout(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Timeout: 100 * time.Millisecond}

	start := time.Now()
	result := r.Run(context.Background(), dir, [][]string{
		{"sleep", "10"},
		{"touch", "after"},
	})

	if time.Since(start) > 5*time.Second {
		t.Fatalf("timed out command was not killed promptly")
	}
	if result.Success {
		t.Fatal("Run() should fail when a command times out")
	}
	if !errors.Is(result.Err, ErrCommandTimeout) {
		t.Errorf("Err = %v, want ErrCommandTimeout", result.Err)
	}
	if !result.Steps[0].TimedOut {
		t.Error("step should be marked as timed out")
	}
	if !strings.Contains(result.Output, "command timed out") {
		t.Errorf("Output should mention the timeout, got %q", result.Output)
	}
	if _, err := os.Stat(filepath.Join(dir, "after")); !os.IsNotExist(err) {
		t.Error("command after the timeout should not run")
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r := &Runner{}
	result := r.Run(context.Background(), t.TempDir(), [][]string{{"/nonexistent/pushdeploy-binary"}})

	if result.Success {
		t.Fatal("Run() should fail for a missing binary")
	}
	if result.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", result.ExitCode)
	}
	if !strings.Contains(result.Output, "error:") {
		t.Errorf("Output should describe the error, got %q", result.Output)
	}
}

func TestRunner_OutputCap(t *testing.T) {
	r := &Runner{MaxOutputBytes: 32}

	result := r.Run(context.Background(), t.TempDir(), [][]string{
		{"echo", strings.Repeat("x", 100)},
		{"echo", "still runs"},
	})

	if !result.Success {
		t.Fatalf("truncation must not fail the run: %v", result.Err)
	}
	if !result.Truncated {
		t.Error("Truncated should be set")
	}
	if !strings.HasSuffix(result.Output, TruncationMarker) {
		t.Errorf("Output should end with the truncation marker, got %q", result.Output)
	}
	if len(result.Output) != 32+len(TruncationMarker) {
		t.Errorf("len(Output) = %d, want %d", len(result.Output), 32+len(TruncationMarker))
	}
	if len(result.Steps) != 2 {
		t.Errorf("all commands should run, got %d steps", len(result.Steps))
	}
}

func TestRunner_OutputCapBoundsMemory(t *testing.T) {
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}

	const produced = 64 << 20
	r := &Runner{
		Timeout:        30 * time.Second,
		MaxOutputBytes: 1024,
		Secrets:        []string{"not-in-the-output-at-all"},
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	result := r.Run(context.Background(), t.TempDir(), [][]string{
		{"head", "-c", strconv.Itoa(produced), "/dev/zero"},
	})

	runtime.ReadMemStats(&after)

	if !result.Success {
		t.Fatalf("Run() failed: %v", result.Err)
	}
	if !result.Truncated || !strings.HasSuffix(result.Output, TruncationMarker) {
		t.Errorf("Output should be truncated, got %d bytes", len(result.Output))
	}
	if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 16<<20 {
		t.Errorf("allocated %d bytes for %d bytes of output capped at %d", allocated, produced, r.MaxOutputBytes)
	}
}

func TestRunner_StepOutputEndsWithNewline(t *testing.T) {
	r := &Runner{}

	result := r.Run(context.Background(), t.TempDir(), [][]string{
		{"printf", "no newline"},
		{"true"},
		{"echo", "done"},
	})

	if !result.Success {
		t.Fatalf("Run() failed: %v", result.Err)
	}
	want := "$ printf 'no newline'\nno newline\n$ true\n$ echo done\ndone\n"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestRunner_RedactsSecrets(t *testing.T) {
	r := &Runner{Secrets: []string{"s3cr3t-value"}}

	result := r.Run(context.Background(), t.TempDir(), [][]string{{"echo", "token=s3cr3t-value"}})

	if strings.Contains(result.Output, "s3cr3t-value") {
		t.Errorf("secret leaked into output: %q", result.Output)
	}
	if !strings.Contains(result.Output, "token=***REDACTED***") {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestRunner_EnvironmentAndDirectory(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Env: []string{"PUSHDEPLOY_TEST_VAR=configured"}}

	result := r.Run(context.Background(), dir, [][]string{{"env"}, {"pwd"}})

	if !result.Success {
		t.Fatalf("Run() failed: %v", result.Err)
	}
	if !strings.Contains(result.Output, "PUSHDEPLOY_TEST_VAR=configured") {
		t.Error("configured environment not passed to the command")
	}
	if !strings.Contains(result.Output, "PATH=") {
		t.Error("process environment should be inherited")
	}
	realDir, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(result.Output, realDir) && !strings.Contains(result.Output, dir) {
		t.Errorf("command did not run in %s:\n%s", dir, result.Output)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := (&Runner{}).Run(ctx, dir, [][]string{{"touch", "a"}})

	if result.Success {
		t.Fatal("Run() should fail on a cancelled context")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", result.Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); !os.IsNotExist(err) {
		t.Error("no command should run on a cancelled context")
	}
}

func TestCappedBuffer(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		writes    []string
		want      string
		truncated bool
	}{
		{"no cap", 0, []string{"abc", "def"}, "abcdef", false},
		{"under cap", 10, []string{"abc", "def"}, "abcdef", false},
		{"exactly cap", 6, []string{"abc", "def"}, "abcdef", false},
		{"over cap", 4, []string{"abc", "def"}, "abcd" + TruncationMarker, true},
		{"write after full", 3, []string{"abc", "d"}, "abc" + TruncationMarker, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &cappedBuffer{max: tt.max}
			for _, w := range tt.writes {
				if n, err := b.Write([]byte(w)); err != nil || n != len(w) {
					t.Fatalf("Write() = %d, %v", n, err)
				}
			}
			if b.String() != tt.want || b.truncated != tt.truncated {
				t.Errorf("got %q (truncated=%v), want %q (truncated=%v)", b.String(), b.truncated, tt.want, tt.truncated)
			}
		})
	}
}

func TestCappedBuffer_EndLine(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{"nothing written", nil, ""},
		{"ends with newline", []string{"abc\n"}, "abc\n"},
		{"ends mid-line", []string{"abc\n", "def"}, "abc\ndef\n"},
		{"empty write keeps state", []string{"abc", ""}, "abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &cappedBuffer{}
			for _, w := range tt.writes {
				_, _ = b.Write([]byte(w))
			}
			b.endLine()
			if b.String() != tt.want {
				t.Errorf("got %q, want %q", b.String(), tt.want)
			}
		})
	}
}
