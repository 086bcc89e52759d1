// Package backend defines the runtime backend port: how a run is
// launched into an isolated execution environment. Callers never branch
// on which backend they hold.
package backend

import (
	"context"
	"time"

	"github.com/wardenworks/warden/internal/domain/run"
)

// LaunchSpec is everything a backend needs to start one run.
type LaunchSpec struct {
	RunID   string
	Task    string
	RepoRef string // local path or remote slug, backend-dependent
	Timeout time.Duration
	Env     map[string]string // extra environment for the run process
}

// RunResult is what a completed (or failed) launch reports back.
type RunResult struct {
	RunID       string
	Outcome     run.Outcome
	BackendKind run.BackendKind
	Branch      string
	// ArtifactDir is a local directory holding the run artifacts. For
	// remote backends this is the download location.
	ArtifactDir string
	Summary     *run.Summary
}

// Backend launches a run and blocks until it reaches a terminal
// outcome. Cancelling ctx abandons observation; whether the underlying
// execution stops is backend-dependent.
type Backend interface {
	Name() string
	Launch(ctx context.Context, spec LaunchSpec) (*RunResult, error)
}
