// Package run defines the Run domain entity for scoped agent executions.
package run

import (
	"regexp"
	"strings"
	"time"
)

// Outcome is the terminal classification of a run. It is set exactly once,
// by the run controller, when the protocol reaches a terminal state.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeVerificationFailure Outcome = "verification_failure"
	OutcomeScopeDisagreement   Outcome = "scope_disagreement"
	OutcomeTimeout             Outcome = "timeout"
	OutcomeError               Outcome = "error"
)

// BackendKind identifies the isolation strategy a run executes under.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// Step numbers the fixed protocol. The numbering is part of the artifact
// contract: commands.log entries and step results carry it.
type Step int

const (
	StepSetup Step = iota + 1
	StepScope
	StepExecute
	StepLint
	StepFixLint
	StepTest
	StepFixTest
	StepFinalTest
	StepFinalize
)

var stepNames = map[Step]string{
	StepSetup:     "setup",
	StepScope:     "scope",
	StepExecute:   "execute",
	StepLint:      "lint",
	StepFixLint:   "fix_lint",
	StepTest:      "test",
	StepFixTest:   "fix_test",
	StepFinalTest: "final_test",
	StepFinalize:  "finalize",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// Run is one execution instance. Identity fields are immutable after
// launch; CurrentStep and Outcome are owned by the run controller.
type Run struct {
	ID          string        `json:"id"`
	Task        string        `json:"task"`
	RepoRef     string        `json:"repo_ref"`
	BackendKind BackendKind   `json:"backend_kind"`
	Timeout     time.Duration `json:"timeout"`
	CurrentStep Step          `json:"current_step"`
	Outcome     Outcome       `json:"outcome,omitempty"`
}

// StepResult records the completion of one protocol step.
type StepResult struct {
	Step    int    `json:"step"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// CommandEntry is a single entry in commands.log (NDJSON).
type CommandEntry struct {
	Step       int    `json:"step"`
	Command    string `json:"command"`
	Dir        string `json:"dir"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
}

// Summary is the final run summary artifact.
type Summary struct {
	RunID              string       `json:"run_id"`
	Task               string       `json:"task"`
	Outcome            Outcome      `json:"outcome"`
	BackendKind        BackendKind  `json:"backend_kind"`
	Steps              []StepResult `json:"steps"`
	Branch             string       `json:"branch,omitempty"`
	BaseSHA            string       `json:"base_sha,omitempty"`
	HeadSHA            string       `json:"head_sha,omitempty"`
	StartedAt          time.Time    `json:"started_at"`
	EndedAt            time.Time    `json:"ended_at"`
	Error              string       `json:"error,omitempty"`
	ExecutorReasoning  string       `json:"executor_reasoning,omitempty"`
	SuggestedAdditions []string     `json:"suggested_additions,omitempty"`
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a task description into a short branch-name-safe slug.
func Slug(task string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(task), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
		s = strings.Trim(s, "-")
	}
	if s == "" {
		return "task"
	}
	return s
}

// BranchName returns the working branch for a run.
func BranchName(runID, task string) string {
	return "warden/" + runID + "/" + Slug(task)
}
