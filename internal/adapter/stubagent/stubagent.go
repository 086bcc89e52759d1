// Package stubagent provides deterministic no-model agents. They make a
// full protocol run possible without any inference backend: the scoper
// allows the whole tree, the executor and fixer do nothing. Useful for
// wiring checks and sandbox image validation.
package stubagent

import (
	"context"
	"log/slog"

	"github.com/wardenworks/warden/internal/domain/scope"
	"github.com/wardenworks/warden/internal/port/agent"
	"github.com/wardenworks/warden/internal/port/verifier"
)

func init() {
	agent.Register("stub", func(log *slog.Logger) (agent.Set, error) {
		return agent.Set{
			Scoper:   &Scoper{log: log},
			Executor: &Executor{log: log},
			Fixer:    &Fixer{log: log},
		}, nil
	})
}

// Scoper proposes a scope covering the entire repository.
type Scoper struct {
	log *slog.Logger
}

func (s *Scoper) ProposeScope(_ context.Context, task string, _ agent.ReadTools) (scope.Definition, error) {
	if s.log != nil {
		s.log.Debug("stub scoper proposing full-tree scope", "task", task)
	}
	return scope.Definition{
		Summary:     "stub scope: full repository",
		AllowedDirs: []string{"."},
		Rationale:   []string{"stub agents place no restrictions"},
	}, nil
}

// Executor completes immediately without touching the tree.
type Executor struct {
	log *slog.Logger
}

func (e *Executor) Execute(_ context.Context, task string, _ agent.Tools) (*scope.Disagreement, error) {
	if e.log != nil {
		e.log.Debug("stub executor completing without changes", "task", task)
	}
	return nil, nil
}

// Fixer acknowledges the failure and changes nothing.
type Fixer struct {
	log *slog.Logger
}

func (f *Fixer) Fix(_ context.Context, task string, report verifier.Report, _ agent.Tools) error {
	if f.log != nil {
		f.log.Debug("stub fixer invoked", "task", task, "kind", report.Kind)
	}
	return nil
}
