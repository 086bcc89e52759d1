package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/domain/scope"
)

// Artifact file names within a run's output directory.
const (
	artifactScope      = "scope.json"
	artifactLintReport = "lint_report.txt"
	artifactTestOutput = "test_output.txt"
	artifactDiff       = "diff.patch"
	artifactDiffStats  = "diff_stats.txt"
	artifactCommands   = "commands.log"
	artifactSummary    = "run_summary.json"
)

// artifacts writes run outputs into one directory.
type artifacts struct {
	dir string
}

func newArtifacts(dir string) (*artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: mkdir: %w", err)
	}
	return &artifacts{dir: dir}, nil
}

func (a *artifacts) writeScope(def scope.Definition) error {
	return a.writeJSON(artifactScope, def)
}

func (a *artifacts) writeText(name, content string) error {
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // G306: artifacts are world-readable
		return fmt.Errorf("artifacts: write %s: %w", name, err)
	}
	return nil
}

func (a *artifacts) writeSummary(summary *run.Summary) error {
	return a.writeJSON(artifactSummary, summary)
}

func (a *artifacts) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifacts: marshal %s: %w", name, err)
	}
	return a.writeText(name, string(data)+"\n")
}
