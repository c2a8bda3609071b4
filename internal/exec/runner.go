// Package exec provides a bounded subprocess runner. Every invocation is a
// scoped resource: spawned with a deadline, output captured, and killed
// (together with its process group) on timeout or cancellation.
package exec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrTimeout marks a subprocess that was killed because its deadline or
// cancellation fired. Callers distinguish it from ordinary non-zero exits.
var ErrTimeout = errors.New("command timed out")

// CommandRunner runs external commands. The abstraction exists so the
// engine and the worktree manager can be tested without spawning
// processes.
type CommandRunner interface {
	// Run executes a command with the given timeout and returns combined
	// stdout/stderr. The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, timeout time.Duration, name string, args ...string) ([]byte, error)

	// RunCommandString splits a shell-quoted command string and runs it.
	// Used for the configured test command.
	RunCommandString(ctx context.Context, workDir string, timeout time.Duration, command string) ([]byte, error)
}

// Runner implements CommandRunner using os/exec.
type Runner struct{}

// NewRunner creates a new Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *Runner) Run(ctx context.Context, workDir string, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	// New process group so a kill reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return out, fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	return out, err
}

// RunCommandString splits command with shell quoting rules and runs it.
func (r *Runner) RunCommandString(ctx context.Context, workDir string, timeout time.Duration, command string) ([]byte, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return r.Run(ctx, workDir, timeout, words[0], words[1:]...)
}

// Verify Runner implements CommandRunner at compile time.
var _ CommandRunner = (*Runner)(nil)
