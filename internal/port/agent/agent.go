// Package agent defines the capability interfaces the run controller
// drives: a scoper that derives the change scope, an executor that does
// the work, and a fixer that reacts to verification failures.
package agent

import (
	"context"

	"github.com/wardenworks/warden/internal/domain/scope"
	"github.com/wardenworks/warden/internal/port/verifier"
	"github.com/wardenworks/warden/internal/tools"
)

// ReadTools is the read-only surface handed to the scoper. The scoper
// derives scope before any scope exists, so it must not be able to
// write.
type ReadTools interface {
	ReadFile(relPath string) (string, error)
	Shell(ctx context.Context, command string) (tools.ShellResult, error)
}

// Tools is the full mediated surface handed to the executor and fixer.
// Every write passes the scope authorization engine.
type Tools interface {
	ReadTools
	WriteFile(relPath, content string) error
	EditFile(relPath, oldText, newText string) error
	Scope() scope.Definition
}

// Scoper analyses the repository and proposes the scope for a task. The
// returned definition is validated and committed by the controller; the
// scoper never sees it again.
type Scoper interface {
	ProposeScope(ctx context.Context, task string, tk ReadTools) (scope.Definition, error)
}

// Executor performs the task inside the committed scope. A nil
// Disagreement means the executor finished its work; a non-nil one
// means it judged the scope insufficient and did not complete, and the
// run ends in scope_disagreement.
type Executor interface {
	Execute(ctx context.Context, task string, tk Tools) (*scope.Disagreement, error)
}

// Fixer reacts to one verification failure. It receives the failing
// report and operates under a scope narrowed to the files the run
// already touched plus the test files.
type Fixer interface {
	Fix(ctx context.Context, task string, report verifier.Report, tk Tools) error
}

// Set bundles the three roles one backend provides.
type Set struct {
	Scoper   Scoper
	Executor Executor
	Fixer    Fixer
}
