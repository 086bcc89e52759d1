package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wardenworks/warden/internal/domain/scope"
)

// ErrHygieneViolation reports that reconciliation could not return the
// working tree to an in-scope-only state.
var ErrHygieneViolation = errors.New("working tree still dirty outside scope after reconciliation")

// ScopeViolationError is returned to the agent when a write attempt is
// denied. It is retryable: the agent is expected to adjust its approach
// within the committed scope rather than abort the run.
type ScopeViolationError struct {
	Path   string
	Reason scope.DecisionReason
	Scope  scope.Definition
}

func (e *ScopeViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "write to %q denied (%s); allowed scope:", e.Path, e.Reason)
	for _, d := range e.Scope.AllowedDirs {
		fmt.Fprintf(&b, " dir %s", d)
	}
	for _, f := range e.Scope.AllowedFiles {
		fmt.Fprintf(&b, " file %s", f)
	}
	for _, f := range e.Scope.TestFiles {
		fmt.Fprintf(&b, " test %s", f)
	}
	return b.String()
}

// Retryable marks the denial as recoverable within the same run.
func (e *ScopeViolationError) Retryable() bool { return true }
