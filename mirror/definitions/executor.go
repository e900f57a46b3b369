package definitions

import (
	"context"
	"strings"
	"time"
)

// CommandResult is the captured outcome of one remote command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output returns the meaningful text of the result: stdout, or stderr when
// stdout is empty. Some device tools report on stderr only.
func (r *CommandResult) Output() string {
	if r == nil {
		return ""
	}
	if out := strings.TrimSpace(r.Stdout); out != "" {
		return out
	}
	return strings.TrimSpace(r.Stderr)
}

// Executor runs commands against a named device. Implementations serialize
// commands per device.
type Executor interface {
	// Execute runs a command and waits for it, failing with ErrCommandTimeout
	// once timeout elapses. A zero timeout uses the executor default.
	Execute(ctx context.Context, serial string, timeout time.Duration, args ...string) (*CommandResult, error)
	// Start launches a command without waiting for it to finish.
	Start(ctx context.Context, serial string, args ...string) error
}
