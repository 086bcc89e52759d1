// Package authz implements the scope authorization engine: mechanical
// allow/deny decisions for every write an agent attempts, a read ledger,
// and post-hoc reconciliation of shell-level changes.
package authz

import (
	"sort"
	"sync"

	"github.com/wardenworks/warden/internal/audit"
	"github.com/wardenworks/warden/internal/domain/scope"
)

// Engine authorizes write attempts against one committed scope
// definition. The definition is cloned at construction and never mutated
// afterwards, including by the engine itself.
type Engine struct {
	def   scope.Definition
	dirs  []string // normalized allowed dir prefixes
	files map[string]struct{}
	tests map[string]struct{}

	mu     sync.Mutex
	reads  map[string]struct{}
	writes map[string]struct{}

	runID    string
	recorder *audit.Recorder
	onDeny   func(path string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithAudit wires decision recording into the audit trail.
func WithAudit(runID string, recorder *audit.Recorder) Option {
	return func(e *Engine) {
		e.runID = runID
		e.recorder = recorder
	}
}

// WithDenialHook registers a callback fired on every denied attempt,
// for metrics.
func WithDenialHook(fn func(path string)) Option {
	return func(e *Engine) { e.onDeny = fn }
}

// NewEngine creates an Engine bound to a clone of def.
func NewEngine(def scope.Definition, opts ...Option) *Engine {
	e := &Engine{
		def:    def.Clone(),
		files:  make(map[string]struct{}, len(def.AllowedFiles)),
		tests:  make(map[string]struct{}, len(def.TestFiles)),
		reads:  make(map[string]struct{}),
		writes: make(map[string]struct{}),
	}
	for _, d := range e.def.AllowedDirs {
		e.dirs = append(e.dirs, scope.NormalizeDir(d))
	}
	for _, f := range e.def.AllowedFiles {
		e.files[scope.NormalizePath(f)] = struct{}{}
	}
	for _, f := range e.def.TestFiles {
		e.tests[scope.NormalizePath(f)] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scope returns a clone of the committed definition.
func (e *Engine) Scope() scope.Definition {
	return e.def.Clone()
}

// Authorize decides a single write attempt. Priority order: test-file
// exemption, exact-file match, directory-prefix match, deny. Matching
// does not require the file to have existed at scope-derivation time.
func (e *Engine) Authorize(att scope.WriteAttempt) scope.Decision {
	dec := e.decide(scope.NormalizePath(att.Path))
	if !dec.Allowed && e.onDeny != nil {
		e.onDeny(att.Path)
	}

	if e.recorder != nil {
		summary := "denied"
		if dec.Allowed {
			summary = "allowed"
		}
		e.recorder.Record(audit.Record{
			RunID:           e.runID,
			ActorRole:       string(att.Role),
			Operation:       "authorize",
			ArgumentsDigest: audit.Digest(att.Path),
			ResultSummary:   summary + ": " + string(dec.Reason),
		})
	}
	return dec
}

func (e *Engine) decide(p string) scope.Decision {
	if _, ok := e.tests[p]; ok {
		return scope.Decision{Allowed: true, Reason: scope.ReasonTestExemption}
	}
	if _, ok := e.files[p]; ok {
		return scope.Decision{Allowed: true, Reason: scope.ReasonExactFile}
	}
	for _, d := range e.dirs {
		if d == "" || hasPrefix(p, d) {
			return scope.Decision{Allowed: true, Reason: scope.ReasonDirPrefix}
		}
	}
	return scope.Decision{Allowed: false, Reason: scope.ReasonNoMatch}
}

func hasPrefix(p, dir string) bool {
	return len(p) > len(dir) && p[:len(dir)] == dir
}

// Check authorizes an attempt and converts a denial into a retryable,
// agent-visible error. It does not touch the write ledger; callers
// record the write once it actually lands.
func (e *Engine) Check(att scope.WriteAttempt) error {
	dec := e.Authorize(att)
	if !dec.Allowed {
		return &ScopeViolationError{Path: att.Path, Reason: dec.Reason, Scope: e.def}
	}
	return nil
}

// RecordWrite notes a completed write in the ledger.
func (e *Engine) RecordWrite(path string) {
	e.mu.Lock()
	e.writes[scope.NormalizePath(path)] = struct{}{}
	e.mu.Unlock()
}

// TrackRead records that an agent read a path. Reads are unrestricted;
// the ledger distinguishes "explored but out of scope" from "never
// considered" when a disagreement is assembled.
func (e *Engine) TrackRead(path string) {
	e.mu.Lock()
	e.reads[scope.NormalizePath(path)] = struct{}{}
	e.mu.Unlock()
}

// Reads returns the sorted read ledger.
func (e *Engine) Reads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.reads))
	for p := range e.reads {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Writes returns the sorted paths written through the authorized path.
func (e *Engine) Writes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.writes))
	for p := range e.writes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FixerScope derives the narrowed definition a fixer invocation is bound
// to: the files already touched through the authorized write path plus
// the committed test files.
func (e *Engine) FixerScope() scope.Definition {
	return scope.Definition{
		Summary:      "fixer scope: files touched by the executor plus test files",
		AllowedFiles: e.Writes(),
		TestFiles:    append([]string(nil), e.def.TestFiles...),
		Rationale:    []string{"fix attempts may only touch files the run already changed"},
	}
}
