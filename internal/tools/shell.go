package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/wardenworks/warden/internal/adapter/otel"
	"github.com/wardenworks/warden/internal/audit"
)

// Shell runs a command line through `sh -c` in the working tree and
// returns its combined output. A non-zero exit is not an error; the
// agent sees the exit code and decides what to do. Filesystem effects
// of shell commands bypass authorization and are caught later by
// reconciliation.
func (t *Toolset) Shell(ctx context.Context, command string) (ShellResult, error) {
	start := time.Now()

	ctx, span := otel.StartToolCallSpan(ctx, t.runID, "shell")
	defer span.End()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // G204: agent commands run inside the sandbox
	cmd.Dir = t.workDir
	out, runErr := cmd.CombinedOutput()

	res := ShellResult{
		Command:  command,
		Dir:      t.workDir,
		Output:   truncate(string(out), maxShellBytes),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case ctx.Err() != nil:
			res.ExitCode = -1
			t.observe(res)
			t.record("shell", audit.Digest(command), "timed out", start)
			return res, fmt.Errorf("tools: shell timed out after %s: %w", t.timeout, ctx.Err())
		default:
			t.observe(res)
			t.record("shell", audit.Digest(command), "failed to start", start)
			return res, fmt.Errorf("tools: shell: %w", runErr)
		}
	}

	t.observe(res)
	t.record("shell", audit.Digest(command), fmt.Sprintf("exit %d, %d bytes", res.ExitCode, len(out)), start)
	return res, nil
}

func (t *Toolset) observe(res ShellResult) {
	if t.observer != nil {
		t.observer(res)
	}
}
