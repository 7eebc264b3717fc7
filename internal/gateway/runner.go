package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes package-manager commands. Production code uses ExecRunner;
// tests substitute a fake.
type Runner interface {
	// Run executes name with args and returns its standard output. On failure
	// the returned error carries the command's stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct {
	// Timeout bounds every command. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("running command", "cmd", name, "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, &CommandError{Command: commandLine(name, args), Stderr: string(exitErr.Stderr), Err: err}
		}
		return output, &CommandError{Command: commandLine(name, args), Err: err}
	}

	logger.Debug("command finished", "cmd", name, "elapsed", time.Since(start))
	return output, nil
}

// CommandError reports a failed subprocess.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v (stderr: %s)", e.Command, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// commandLine renders argv as shell text, single-quoting arguments that need it.
func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`()[]{}<>|&;*?!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
