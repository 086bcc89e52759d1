// Package tools is the mediated surface agents act through. Every file
// mutation passes the scope authorization engine, every read feeds the
// rule injector and the read ledger, and every call lands in the audit
// trail. Agents never touch the working tree directly.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wardenworks/warden/internal/audit"
	"github.com/wardenworks/warden/internal/authz"
	"github.com/wardenworks/warden/internal/domain/scope"
	"github.com/wardenworks/warden/internal/rules"
)

const (
	maxReadBytes  = 100_000
	maxShellBytes = 50_000
)

// RetryError tells the agent its call failed in a way it can correct
// within the same run: a denied write, a stale read, an ambiguous edit.
type RetryError struct {
	msg string
}

func (e *RetryError) Error() string   { return e.msg }
func (e *RetryError) Retryable() bool { return true }

func retryf(format string, args ...any) error {
	return &RetryError{msg: fmt.Sprintf(format, args...)}
}

// ShellResult is the observable outcome of one shell invocation.
type ShellResult struct {
	Command  string
	Dir      string
	ExitCode int
	Output   string
	Duration time.Duration
}

// Observer receives every shell invocation for command logging.
type Observer func(ShellResult)

// Toolset binds one agent role to a working tree. It is not safe for
// concurrent use; a run drives one agent call at a time.
type Toolset struct {
	workDir  string
	role     scope.Role
	engine   *authz.Engine
	rules    *rules.Loader
	recorder *audit.Recorder
	runID    string
	observer Observer
	timeout  time.Duration

	// mtimes holds the modification time observed at last read, keyed by
	// repo-relative path. Writes require a fresh read.
	mtimes map[string]time.Time
}

// NewToolset creates a Toolset rooted at workDir. recorder, loader and
// observer may be nil.
func NewToolset(workDir string, role scope.Role, engine *authz.Engine, loader *rules.Loader, recorder *audit.Recorder, runID string, observer Observer, shellTimeout time.Duration) *Toolset {
	return &Toolset{
		workDir:  workDir,
		role:     role,
		engine:   engine,
		rules:    loader,
		recorder: recorder,
		runID:    runID,
		observer: observer,
		timeout:  shellTimeout,
		mtimes:   make(map[string]time.Time),
	}
}

// resolve maps a repo-relative path to an absolute one, rejecting
// anything that escapes the working tree.
func (t *Toolset) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", retryf("path %q is absolute; use repo-relative paths", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", retryf("path %q escapes the repository", rel)
	}
	return filepath.Join(t.workDir, clean), nil
}

func (t *Toolset) record(op, digest, summary string, start time.Time) {
	if t.recorder == nil {
		return
	}
	t.recorder.Record(audit.Record{
		RunID:           t.runID,
		ActorRole:       string(t.role),
		Operation:       op,
		ArgumentsDigest: digest,
		ResultSummary:   summary,
		DurationMS:      time.Since(start).Milliseconds(),
	})
}

// ReadFile returns the file's content with applicable rule files
// injected ahead of it. The read is tracked and its mtime noted so a
// later write can prove freshness. Reads are never scope-restricted.
func (t *Toolset) ReadFile(relPath string) (string, error) {
	start := time.Now()
	abs, err := t.resolve(relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", retryf("file %q does not exist", relPath)
		}
		return "", fmt.Errorf("tools: stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return "", retryf("%q is a directory", relPath)
	}

	data, err := os.ReadFile(abs) //nolint:gosec // G304: resolve confines the path to the working tree
	if err != nil {
		return "", fmt.Errorf("tools: read %s: %w", relPath, err)
	}
	content := truncate(string(data), maxReadBytes)

	norm := scope.NormalizePath(relPath)
	t.engine.TrackRead(norm)
	t.mtimes[norm] = info.ModTime()

	if t.rules != nil {
		content, err = t.rules.Inject(norm, content)
		if err != nil {
			return "", err
		}
	}

	t.record("read_file", audit.Digest(relPath), fmt.Sprintf("%d bytes", len(data)), start)
	return content, nil
}

// WriteFile creates or replaces a file. The write must be in scope, and
// an existing file must have been read since its last modification.
func (t *Toolset) WriteFile(relPath, content string) error {
	start := time.Now()
	abs, err := t.resolve(relPath)
	if err != nil {
		return err
	}
	norm := scope.NormalizePath(relPath)

	if err := t.engine.Check(scope.WriteAttempt{Path: norm, Content: content, Role: t.role}); err != nil {
		t.record("write_file", audit.Digest(relPath), "denied", start)
		return err
	}

	if info, err := os.Stat(abs); err == nil {
		seen, ok := t.mtimes[norm]
		if !ok {
			return retryf("read %q before overwriting it", relPath)
		}
		if info.ModTime().After(seen) {
			return retryf("%q changed since you last read it; read it again", relPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("tools: mkdir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil { //nolint:gosec // G306: repo files are world-readable
		return fmt.Errorf("tools: write %s: %w", relPath, err)
	}
	if info, err := os.Stat(abs); err == nil {
		t.mtimes[norm] = info.ModTime()
	}
	t.engine.RecordWrite(norm)

	t.record("write_file", audit.Digest(relPath, content), fmt.Sprintf("wrote %d bytes", len(content)), start)
	return nil
}

// EditFile replaces exactly one occurrence of old with new. Zero or
// multiple matches are retryable errors so the agent can refine the
// snippet.
func (t *Toolset) EditFile(relPath, oldText, newText string) error {
	start := time.Now()
	abs, err := t.resolve(relPath)
	if err != nil {
		return err
	}
	norm := scope.NormalizePath(relPath)

	if err := t.engine.Check(scope.WriteAttempt{Path: norm, Content: newText, Role: t.role}); err != nil {
		t.record("edit_file", audit.Digest(relPath), "denied", start)
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return retryf("file %q does not exist", relPath)
		}
		return fmt.Errorf("tools: stat %s: %w", relPath, err)
	}
	seen, ok := t.mtimes[norm]
	if !ok {
		return retryf("read %q before editing it", relPath)
	}
	if info.ModTime().After(seen) {
		return retryf("%q changed since you last read it; read it again", relPath)
	}

	data, err := os.ReadFile(abs) //nolint:gosec // G304: resolve confines the path to the working tree
	if err != nil {
		return fmt.Errorf("tools: read %s: %w", relPath, err)
	}
	content := string(data)

	switch n := strings.Count(content, oldText); {
	case n == 0:
		return retryf("text to replace not found in %q", relPath)
	case n > 1:
		return retryf("text to replace appears %d times in %q; provide a unique snippet", n, relPath)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil { //nolint:gosec // G306: repo files are world-readable
		return fmt.Errorf("tools: write %s: %w", relPath, err)
	}
	if info, err := os.Stat(abs); err == nil {
		t.mtimes[norm] = info.ModTime()
	}
	t.engine.RecordWrite(norm)

	t.record("edit_file", audit.Digest(relPath, oldText, newText), "edited", start)
	return nil
}

// Scope returns the committed scope the toolset enforces, for agents
// that want to reason about their own bounds.
func (t *Toolset) Scope() scope.Definition {
	return t.engine.Scope()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-max)
}
