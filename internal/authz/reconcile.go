package authz

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenworks/warden/internal/domain/scope"
	"github.com/wardenworks/warden/internal/git"
)

// Reconcile sweeps the working tree for out-of-scope modifications that
// bypassed the authorized write path, typically via shell commands.
// Tracked out-of-scope changes are reverted, untracked out-of-scope
// files are deleted, and in-scope changes are left untouched. If the
// tree still holds out-of-scope changes afterwards, ErrHygieneViolation
// is returned. Reverted paths are returned either way.
func (e *Engine) Reconcile(ctx context.Context, r *git.Runner, workdir string, log *slog.Logger) ([]string, error) {
	reverted, err := e.reconcileOnce(ctx, r, workdir, log)
	if err != nil {
		return reverted, err
	}

	entries, err := r.StatusPorcelain(ctx, workdir)
	if err != nil {
		return reverted, fmt.Errorf("reconcile: re-check status: %w", err)
	}
	for _, entry := range entries {
		if !e.entryAllowed(entry.Path) {
			return reverted, fmt.Errorf("%w: %s", ErrHygieneViolation, entry.Path)
		}
	}
	return reverted, nil
}

// entryAllowed decides a porcelain status path. Wholly untracked
// directories show up as "dir/"; such an entry is in scope when the
// directory sits under an allowed dir prefix.
func (e *Engine) entryAllowed(p string) bool {
	if strings.HasSuffix(p, "/") {
		d := scope.NormalizeDir(p)
		for _, allowed := range e.dirs {
			if allowed == "" || strings.HasPrefix(d, allowed) {
				return true
			}
		}
		return false
	}
	return e.decide(scope.NormalizePath(p)).Allowed
}

func (e *Engine) reconcileOnce(ctx context.Context, r *git.Runner, workdir string, log *slog.Logger) ([]string, error) {
	entries, err := r.StatusPorcelain(ctx, workdir)
	if err != nil {
		return nil, fmt.Errorf("reconcile: status: %w", err)
	}

	var reverted []string
	for _, entry := range entries {
		if e.entryAllowed(entry.Path) {
			continue
		}
		if entry.Untracked() {
			// untracked directories are reported as "dir/" and must go
			// wholesale
			abs := filepath.Join(workdir, filepath.FromSlash(entry.Path))
			if err := os.RemoveAll(abs); err != nil {
				return reverted, fmt.Errorf("reconcile: remove %s: %w", entry.Path, err)
			}
		} else {
			if err := r.Restore(ctx, workdir, entry.Path); err != nil {
				return reverted, fmt.Errorf("reconcile: restore %s: %w", entry.Path, err)
			}
		}
		reverted = append(reverted, entry.Path)
		if log != nil {
			log.Warn("reverted out-of-scope change", "path", entry.Path, "untracked", entry.Untracked())
		}
	}
	return reverted, nil
}
