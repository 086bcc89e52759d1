// Package scope defines the write-boundary contract committed before any
// code is written: the scope definition, write attempts against it, and
// the decisions they produce.
package scope

import (
	"fmt"
	"path"
	"strings"
)

// Role identifies which agent role is acting.
type Role string

const (
	RoleScoper   Role = "scoper"
	RoleExecutor Role = "executor"
	RoleFixer    Role = "fixer"
)

// Definition is the boundary produced by the scoper agent. Once accepted
// by the run controller it is immutable for the remainder of the run;
// consumers hold their own clone and never share slices.
type Definition struct {
	Summary      string   `json:"summary"`
	AllowedDirs  []string `json:"allowed_dirs"`
	AllowedFiles []string `json:"allowed_files"`
	TestFiles    []string `json:"test_files"`
	Rationale    []string `json:"rationale"`
}

// Clone returns a deep copy. Committing a clone is how the controller
// guarantees the definition cannot be mutated through retained slices.
func (d Definition) Clone() Definition {
	c := d
	c.AllowedDirs = append([]string(nil), d.AllowedDirs...)
	c.AllowedFiles = append([]string(nil), d.AllowedFiles...)
	c.TestFiles = append([]string(nil), d.TestFiles...)
	c.Rationale = append([]string(nil), d.Rationale...)
	return c
}

// Validate checks a scoper-produced definition before commit.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Summary) == "" {
		return fmt.Errorf("scope: summary is required")
	}
	if len(d.AllowedDirs) == 0 && len(d.AllowedFiles) == 0 && len(d.TestFiles) == 0 {
		return fmt.Errorf("scope: at least one allowed dir, file or test file is required")
	}
	for _, p := range d.AllowedDirs {
		if err := checkEntry(p); err != nil {
			return fmt.Errorf("scope: allowed_dirs: %w", err)
		}
	}
	for _, p := range d.AllowedFiles {
		if err := checkEntry(p); err != nil {
			return fmt.Errorf("scope: allowed_files: %w", err)
		}
	}
	for _, p := range d.TestFiles {
		if err := checkEntry(p); err != nil {
			return fmt.Errorf("scope: test_files: %w", err)
		}
	}
	return nil
}

func checkEntry(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty path entry")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("absolute path %q not allowed", p)
	}
	if p != "." && strings.HasPrefix(path.Clean(p), "..") {
		return fmt.Errorf("path %q escapes the repository", p)
	}
	return nil
}

// NormalizePath cleans a repo-relative path for matching: slash-separated,
// no leading "./".
func NormalizePath(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." {
		return ""
	}
	return p
}

// NormalizeDir cleans a directory entry to a prefix with a trailing slash.
// "." (or "./") denotes the repository root and matches everything.
func NormalizeDir(d string) string {
	d = NormalizePath(strings.TrimSuffix(d, "/"))
	if d == "" {
		return ""
	}
	return d + "/"
}

// WriteAttempt is a single proposed file mutation. It is consumed
// synchronously by the authorization engine and never persisted beyond
// the audit log.
type WriteAttempt struct {
	Path    string
	Content string
	Role    Role
}

// DecisionReason explains an authorization decision.
type DecisionReason string

const (
	ReasonTestExemption DecisionReason = "test-file exemption"
	ReasonExactFile     DecisionReason = "exact-file match"
	ReasonDirPrefix     DecisionReason = "directory-prefix match"
	ReasonNoMatch       DecisionReason = "no match"
)

// Decision is the result of authorizing a WriteAttempt.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  DecisionReason `json:"reason"`
}

// Disagreement is the executor's terminal declaration that the committed
// boundary is insufficient. Once emitted, no further writes are attempted.
type Disagreement struct {
	Reasoning          string   `json:"executor_reasoning"`
	SuggestedAdditions []string `json:"suggested_additions"`
}
