package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/exec"
)

// CommandError wraps a non-zero git exit with the command, exit code, and
// captured output. Structurally distinct from a merge conflict.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: exit %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err came from a git invocation that exceeded
// its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, exec.ErrTimeout)
}
