// Package shellverifier runs the configured lint and test commands
// through the shell inside the working tree.
package shellverifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/wardenworks/warden/internal/port/verifier"
)

const maxReportBytes = 50_000

// Verifier executes lint/test command lines via `sh -c`.
type Verifier struct {
	workDir string
	lint    string
	lintFix string
	test    string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Verifier bound to workDir. Empty lintFix disables the
// mechanical fix pass.
func New(workDir, lint, lintFix, test string, timeout time.Duration, log *slog.Logger) *Verifier {
	return &Verifier{
		workDir: workDir,
		lint:    lint,
		lintFix: lintFix,
		test:    test,
		timeout: timeout,
		log:     log,
	}
}

func (v *Verifier) Lint(ctx context.Context) (verifier.Report, error) {
	return v.run(ctx, verifier.KindLint, v.lint)
}

// FixLint applies the mechanical auto-fix command, then reports a fresh
// lint pass so the caller sees the post-fix state.
func (v *Verifier) FixLint(ctx context.Context) (verifier.Report, error) {
	if v.lintFix != "" {
		if _, err := v.run(ctx, verifier.KindLint, v.lintFix); err != nil {
			return verifier.Report{}, err
		}
	}
	return v.Lint(ctx)
}

func (v *Verifier) Test(ctx context.Context) (verifier.Report, error) {
	return v.run(ctx, verifier.KindTest, v.test)
}

func (v *Verifier) run(ctx context.Context, kind verifier.Kind, command string) (verifier.Report, error) {
	if command == "" {
		return verifier.Report{}, fmt.Errorf("shellverifier: no %s command configured", kind)
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // G204: commands come from operator config
	cmd.Dir = v.workDir
	out, runErr := cmd.CombinedOutput()

	report := verifier.Report{Kind: kind, Output: capOutput(string(out))}
	if runErr == nil {
		report.Passed = true
	} else {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return verifier.Report{}, fmt.Errorf("shellverifier: %s: %w", kind, runErr)
		}
		if ctx.Err() != nil {
			return verifier.Report{}, fmt.Errorf("shellverifier: %s timed out after %s: %w", kind, v.timeout, ctx.Err())
		}
	}

	if v.log != nil {
		v.log.Info("verification pass finished",
			"kind", kind, "passed", report.Passed, "duration", time.Since(start))
	}
	return report, nil
}

func capOutput(s string) string {
	if len(s) <= maxReportBytes {
		return s
	}
	return s[:maxReportBytes] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-maxReportBytes)
}
