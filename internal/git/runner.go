package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result holds the outcome of one git invocation. A non-zero exit code is
// reported here, not as an error; errors mean the command could not run.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Observer is called after every git invocation, whether it succeeded or
// not. The run controller uses it to feed commands.log.
type Observer func(args []string, dir string, res Result)

// Runner executes git commands through a shared Pool with a per-command
// timeout.
type Runner struct {
	pool     *Pool
	timeout  time.Duration
	observer Observer
}

// NewRunner creates a Runner. A nil pool disables concurrency control;
// a zero timeout disables the per-command deadline.
func NewRunner(pool *Pool, timeout time.Duration, observer Observer) *Runner {
	return &Runner{pool: pool, timeout: timeout, observer: observer}
}

// Git runs `git args...` in dir, capturing combined output.
func (r *Runner) Git(ctx context.Context, dir string, args ...string) (Result, error) {
	var res Result
	err := r.pool.Run(ctx, func() error {
		runCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		cmd := exec.CommandContext(runCtx, "git", args...) //nolint:gosec // G204: args are constructed internally, not from agent input
		cmd.Dir = dir

		var buf bytes.Buffer
		cmd.Stdout = &buf
		cmd.Stderr = &buf

		runErr := cmd.Run()
		res = Result{
			Output:   buf.String(),
			Duration: time.Since(start),
		}
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}

		if runErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(runErr, &exitErr) {
				res.ExitCode = -1
				res.Output = runErr.Error()
				return fmt.Errorf("git %s: %w", strings.Join(args, " "), runErr)
			}
		}
		return nil
	})

	if r.observer != nil {
		r.observer(append([]string{"git"}, args...), dir, res)
	}
	return res, err
}

// RevParseHead returns the current HEAD SHA.
func (r *Runner) RevParseHead(ctx context.Context, dir string) (string, error) {
	res, err := r.Git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git rev-parse HEAD: %s", strings.TrimSpace(res.Output))
	}
	return strings.TrimSpace(res.Output), nil
}

// CheckoutNew creates and checks out a new branch.
func (r *Runner) CheckoutNew(ctx context.Context, dir, branch string) error {
	res, err := r.Git(ctx, dir, "checkout", "-b", branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git checkout -b %s: %s", branch, strings.TrimSpace(res.Output))
	}
	return nil
}

// Clone clones src into dst.
func (r *Runner) Clone(ctx context.Context, src, dst string) error {
	res, err := r.Git(ctx, "", "clone", src, dst)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git clone: %s", strings.TrimSpace(res.Output))
	}
	return nil
}

// StatusPorcelain returns the parsed paths of all dirty (changed, staged
// or untracked) files. Renames report the new name.
func (r *Runner) StatusPorcelain(ctx context.Context, dir string) ([]StatusEntry, error) {
	res, err := r.Git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git status: %s", strings.TrimSpace(res.Output))
	}
	return ParseStatus(res.Output), nil
}

// StatusEntry is one line of porcelain status output.
type StatusEntry struct {
	Code string // two-character XY status code
	Path string
}

// Untracked reports whether the entry is an untracked file.
func (e StatusEntry) Untracked() bool { return e.Code == "??" }

// ParseStatus parses `git status --porcelain` output.
func ParseStatus(out string) []StatusEntry {
	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		p := line[3:]
		// Rename lines look like "R  old -> new"; keep the new name.
		if i := strings.LastIndex(p, " -> "); i >= 0 {
			p = p[i+4:]
		}
		p = strings.Trim(strings.TrimSpace(p), `"`)
		entries = append(entries, StatusEntry{Code: line[:2], Path: p})
	}
	return entries
}

// Restore restores a tracked path to its committed content.
func (r *Runner) Restore(ctx context.Context, dir, path string) error {
	res, err := r.Git(ctx, dir, "restore", "--staged", "--worktree", "--", path)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git restore %s: %s", path, strings.TrimSpace(res.Output))
	}
	return nil
}

// AddAll stages every change in the working tree.
func (r *Runner) AddAll(ctx context.Context, dir string) error {
	res, err := r.Git(ctx, dir, "add", "-A")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git add -A: %s", strings.TrimSpace(res.Output))
	}
	return nil
}

// Commit creates a commit with the given message.
func (r *Runner) Commit(ctx context.Context, dir, message string) error {
	res, err := r.Git(ctx, dir, "commit", "-m", message)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git commit: %s", strings.TrimSpace(res.Output))
	}
	return nil
}

// Push pushes HEAD to origin. Callers treat failure as non-fatal.
func (r *Runner) Push(ctx context.Context, dir string) error {
	res, err := r.Git(ctx, dir, "push", "origin", "HEAD")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git push: %s", strings.TrimSpace(res.Output))
	}
	return nil
}

// Diff returns the patch between two revisions.
func (r *Runner) Diff(ctx context.Context, dir, revRange string) (string, error) {
	res, err := r.Git(ctx, dir, "diff", revRange)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git diff %s: %s", revRange, strings.TrimSpace(res.Output))
	}
	return res.Output, nil
}

// DiffStat returns the summarized diff between two revisions.
func (r *Runner) DiffStat(ctx context.Context, dir, revRange string) (string, error) {
	res, err := r.Git(ctx, dir, "diff", "--stat", revRange)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git diff --stat %s: %s", revRange, strings.TrimSpace(res.Output))
	}
	return res.Output, nil
}
