package natmod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a prepared command. Executor is the real implementation;
// tests substitute a recorder.
type Runner interface {
	Run(ctx context.Context, cmd *exec.Cmd) error
}

// Executor runs external tools (git, make) with consistent stdio wiring and
// context-driven cleanup.
type Executor struct {
	Interactive bool // Interactive indicates whether the command may prompt the user
}

func NewExecutor() *Executor {
	return &Executor{}
}

// Run starts cmd and waits for it. Unless the executor is interactive the
// child gets its own process group, which is killed as a whole when ctx ends.
func (e *Executor) Run(ctx context.Context, cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdin == nil && e.Interactive {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// --- Phase 1: isolate process group for context-based cleanup ---
	if !e.Interactive {
		setProcessGroup(cmd)
	}

	debugf("exec: %s (dir=%s)", strings.Join(cmd.Args, " "), cmd.Dir)

	// --- Phase 2: start and watch for cancel ---
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if e.Interactive {
				_ = cmd.Process.Kill()
			} else {
				killProcessGroup(cmd)
			}
		case <-done:
		}
	}()

	// --- Phase 3: wait and return ---
	if waitErr := cmd.Wait(); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			time.Sleep(100 * time.Millisecond)
			return contextError(cmd.Args[0], ctxErr)
		}
		return waitErr
	}
	return nil
}

// contextError maps a finished context to the error reported for op.
func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s aborted: %w", op, err)
}

// withTimeout derives a context bounded by d; d == 0 means no bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// exitCode extracts the exit status of a failed command, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
