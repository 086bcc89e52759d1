// Package dockerlocal launches runs in a hardened local docker
// container. The repository is mounted read-only; the run works on a
// scratch tmpfs copy and writes artifacts to a bind-mounted output
// directory, the only part of the launch that survives the container.
package dockerlocal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/port/backend"
)

// Backend implements backend.Backend on the local docker daemon.
type Backend struct {
	cfg config.Sandbox
	log *slog.Logger
}

// New creates the local docker backend.
func New(cfg config.Sandbox, log *slog.Logger) *Backend {
	return &Backend{cfg: cfg, log: log}
}

func (b *Backend) Name() string { return string(run.BackendLocal) }

// Launch starts the container and blocks until it exits, then reads the
// run summary from the output directory. A non-zero container exit with
// a readable summary is a completed run with a non-success outcome, not
// a launch error.
func (b *Backend) Launch(ctx context.Context, spec backend.LaunchSpec) (*backend.RunResult, error) {
	if err := b.ensureImage(ctx); err != nil {
		return nil, err
	}

	outDir := filepath.Join(b.cfg.OutputBase, spec.RunID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("dockerlocal: output dir: %w", err)
	}

	args := b.buildRunArgs(spec, outDir)
	b.log.Info("launching sandboxed run",
		"run_id", spec.RunID, "image", b.cfg.Image, "network", b.cfg.NetworkMode)

	cmd := exec.CommandContext(ctx, "docker", args...) //nolint:gosec // G204: args are built from validated config
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("dockerlocal: docker run: %w: %s", runErr, strings.TrimSpace(string(out)))
		}
		b.log.Warn("container exited non-zero", "run_id", spec.RunID, "exit_code", exitErr.ExitCode())
	}

	return b.collectResult(spec, outDir)
}

// buildRunArgs assembles the docker run command line. The flag set is
// the isolation contract: read-only root, tmpfs scratch space, no
// capabilities, no privilege escalation, unprivileged user, restricted
// network.
func (b *Backend) buildRunArgs(spec backend.LaunchSpec, outDir string) []string {
	uid, gid := splitUser(b.cfg.User)
	args := []string{
		"run", "--rm",
		"--name", "warden-" + spec.RunID,
		"--read-only",
		"--tmpfs", fmt.Sprintf("/work:size=%s,uid=%s,gid=%s", b.cfg.ScratchSize, uid, gid),
		"--tmpfs", "/tmp:size=" + b.cfg.TmpSize,
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--user", b.cfg.User,
		"--network", b.cfg.NetworkMode,
		"-v", spec.RepoRef + ":/repo:ro",
		"-v", outDir + ":/output",
		"-e", "TASK=" + spec.Task,
		"-e", "RUN_ID=" + spec.RunID,
		"-e", "WORK_DIR=/work/repo",
		"-e", "OUTPUT_DIR=/output",
		"-e", "WARDEN_TIMEOUT=" + spec.Timeout.String(),
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	if b.cfg.EnvFile != "" {
		args = append(args, "--env-file", b.cfg.EnvFile)
	}
	return append(args, b.cfg.Image)
}

func splitUser(user string) (uid, gid string) {
	uid, gid, ok := strings.Cut(user, ":")
	if !ok {
		gid = uid
	}
	return uid, gid
}

// ensureImage verifies the runner image exists locally.
func (b *Backend) ensureImage(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", b.cfg.Image)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("dockerlocal: image %q not available: %s", b.cfg.Image, strings.TrimSpace(string(out)))
	}
	return nil
}

// collectResult reads the run summary the in-container process wrote.
// A missing or unreadable summary means the run died before finalize.
func (b *Backend) collectResult(spec backend.LaunchSpec, outDir string) (*backend.RunResult, error) {
	data, err := os.ReadFile(filepath.Join(outDir, "run_summary.json")) //nolint:gosec // G304: path is under the configured output base
	if err != nil {
		return &backend.RunResult{
			RunID:       spec.RunID,
			Outcome:     run.OutcomeError,
			BackendKind: run.BackendLocal,
			ArtifactDir: outDir,
		}, fmt.Errorf("dockerlocal: run summary missing: %w", err)
	}

	var summary run.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("dockerlocal: run summary unreadable: %w", err)
	}

	return &backend.RunResult{
		RunID:       spec.RunID,
		Outcome:     summary.Outcome,
		BackendKind: run.BackendLocal,
		Branch:      summary.Branch,
		ArtifactDir: outDir,
		Summary:     &summary,
	}, nil
}
