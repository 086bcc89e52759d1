package dockerlocal

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/port/backend"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBackend() *Backend {
	return New(config.Sandbox{
		Image:       "warden-runner:latest",
		OutputBase:  "/tmp/warden",
		NetworkMode: "none",
		ScratchSize: "4g",
		TmpSize:     "1g",
		User:        "1000:1000",
	}, discard())
}

func TestBuildRunArgs_IsolationFlags(t *testing.T) {
	b := testBackend()
	spec := backend.LaunchSpec{
		RunID:   "r1",
		Task:    "fix the login bug",
		RepoRef: "/repos/app",
		Timeout: 30 * time.Minute,
	}

	args := b.buildRunArgs(spec, "/tmp/warden/r1")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--rm",
		"--read-only",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--tmpfs /work:size=4g,uid=1000,gid=1000",
		"--tmpfs /tmp:size=1g",
		"--user 1000:1000",
		"--network none",
		"-v /repos/app:/repo:ro",
		"-v /tmp/warden/r1:/output",
		"-e TASK=fix the login bug",
		"-e RUN_ID=r1",
		"-e WORK_DIR=/work/repo",
		"-e OUTPUT_DIR=/output",
		"-e WARDEN_TIMEOUT=30m0s",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in args:\n%s", want, joined)
		}
	}

	if args[len(args)-1] != "warden-runner:latest" {
		t.Errorf("image must be the last argument, got %q", args[len(args)-1])
	}
}

func TestBuildRunArgs_ExtraEnvAndEnvFile(t *testing.T) {
	b := testBackend()
	b.cfg.EnvFile = "/etc/warden/agent.env"
	spec := backend.LaunchSpec{
		RunID:   "r2",
		RepoRef: "/repos/app",
		Env:     map[string]string{"WARDEN_STUBS": "1"},
	}

	args := b.buildRunArgs(spec, "/tmp/warden/r2")
	if !slices.Contains(args, "WARDEN_STUBS=1") {
		t.Errorf("extra env missing: %v", args)
	}
	i := slices.Index(args, "--env-file")
	if i < 0 || args[i+1] != "/etc/warden/agent.env" {
		t.Errorf("env-file missing: %v", args)
	}
}

func TestSplitUser(t *testing.T) {
	for _, tt := range []struct {
		in, uid, gid string
	}{
		{"1000:1000", "1000", "1000"},
		{"1000:2000", "1000", "2000"},
		{"1000", "1000", "1000"},
	} {
		uid, gid := splitUser(tt.in)
		if uid != tt.uid || gid != tt.gid {
			t.Errorf("splitUser(%q) = %s:%s", tt.in, uid, gid)
		}
	}
}

func TestName(t *testing.T) {
	if got := testBackend().Name(); got != "local" {
		t.Errorf("Name() = %q", got)
	}
}
