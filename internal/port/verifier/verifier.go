// Package verifier defines the check surface a run must pass before its
// work is committed.
package verifier

import "context"

// Kind names a verification class. Fix attempts are budgeted per kind.
type Kind string

const (
	KindLint Kind = "lint"
	KindTest Kind = "test"
)

// Report is the outcome of one verification pass. Output is capped by
// the implementation and safe to hand to an agent or write verbatim to
// an artifact.
type Report struct {
	Kind   Kind   `json:"kind"`
	Passed bool   `json:"passed"`
	Output string `json:"output"`
}

// Verifier runs the configured checks inside the working tree. A failed
// check is a Report with Passed=false, not an error; errors mean the
// check itself could not run.
type Verifier interface {
	// Lint runs the lint command.
	Lint(ctx context.Context) (Report, error)
	// FixLint runs the mechanical lint auto-fix command, then reports
	// the state of a fresh lint pass.
	FixLint(ctx context.Context) (Report, error)
	// Test runs the test command.
	Test(ctx context.Context) (Report, error)
}
