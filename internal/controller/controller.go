// Package controller drives a run through the fixed nine-step protocol:
// setup, scope, execute, lint, fix_lint, test, fix_test, final_test,
// finalize. The step sequence never varies; steps that have nothing to
// do are skipped by their predecessor, not reordered.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/wardenworks/warden/internal/adapter/otel"
	"github.com/wardenworks/warden/internal/audit"
	"github.com/wardenworks/warden/internal/authz"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/domain/scope"
	"github.com/wardenworks/warden/internal/git"
	"github.com/wardenworks/warden/internal/port/agent"
	"github.com/wardenworks/warden/internal/port/eventsink"
	"github.com/wardenworks/warden/internal/port/verifier"
	"github.com/wardenworks/warden/internal/rules"
	"github.com/wardenworks/warden/internal/tools"
)

// Options carries everything a Controller needs. Commands must be the
// same log the git runner's observer feeds.
type Options struct {
	Run          *run.Run
	WorkDir      string
	OutputDir    string
	Agents       agent.Set
	Verifier     verifier.Verifier
	Git          *git.Runner
	Rules        *rules.Loader
	Audit        *audit.Recorder
	Events       eventsink.Sink
	Metrics      *otel.Metrics
	Log          *slog.Logger
	Commands     *CommandLog
	CommitPrefix string
	ShellTimeout time.Duration
	Push         bool
}

// Controller executes one run. It is single-use.
type Controller struct {
	opts Options
	log  *slog.Logger

	engine   *authz.Engine
	toolset  *tools.Toolset
	arts     *artifacts
	summary  *run.Summary
	outcome  run.Outcome
	lastTest verifier.Report
}

// New creates a Controller for one run.
func New(opts Options) (*Controller, error) {
	if opts.Run == nil {
		return nil, fmt.Errorf("controller: run is required")
	}
	if opts.Events == nil {
		opts.Events = eventsink.Nop{}
	}
	if opts.Commands == nil {
		opts.Commands = NewCommandLog()
	}
	arts, err := newArtifacts(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	return &Controller{
		opts: opts,
		log:  opts.Log.With("run_id", opts.Run.ID),
		arts: arts,
	}, nil
}

// Execute runs the protocol to a terminal outcome. The returned summary
// is always non-nil, even when err is set; err reports run-level
// failures (outcome error or timeout), never verification results.
func (c *Controller) Execute(ctx context.Context) (*run.Summary, error) {
	r := c.opts.Run
	ctx, span := otel.StartRunSpan(ctx, r.ID, r.Task, string(r.BackendKind))
	defer span.End()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c.summary = &run.Summary{
		RunID:       r.ID,
		Task:        r.Task,
		BackendKind: r.BackendKind,
		StartedAt:   time.Now().UTC(),
	}
	c.publish(ctx, eventsink.TypeRunStarted, nil)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RunsStarted.Add(ctx, 1)
	}
	c.log.Info("run started", "task", r.Task, "timeout", r.Timeout)

	var runErr error
	for step := run.StepSetup; step != 0; {
		r.CurrentStep = step
		c.opts.Commands.SetStep(step)

		stepCtx, stepSpan := otel.StartStepSpan(ctx, r.ID, step.String())
		next, err := c.dispatch(stepCtx, step)
		stepSpan.End()

		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.outcome = run.OutcomeTimeout
				runErr = fmt.Errorf("run timed out during %s: %w", step, err)
			} else {
				c.outcome = run.OutcomeError
				runErr = fmt.Errorf("step %s: %w", step, err)
			}
			c.summary.Error = runErr.Error()
			c.recordStep(step, false, runErr.Error())
			c.log.Error("step failed", "step", step.String(), "error", err)
			break
		}

		c.recordStep(step, true, "")
		c.publish(ctx, eventsink.TypeStepCompleted, map[string]any{"step": step.String()})
		step = next
	}

	c.finish(ctx)
	return c.summary, runErr
}

func (c *Controller) dispatch(ctx context.Context, step run.Step) (run.Step, error) {
	switch step {
	case run.StepSetup:
		return c.stepSetup(ctx)
	case run.StepScope:
		return c.stepScope(ctx)
	case run.StepExecute:
		return c.stepExecute(ctx)
	case run.StepLint:
		return c.stepLint(ctx)
	case run.StepFixLint:
		return c.stepFixLint(ctx)
	case run.StepTest:
		return c.stepTest(ctx)
	case run.StepFixTest:
		return c.stepFixTest(ctx)
	case run.StepFinalTest:
		return c.stepFinalTest(ctx)
	case run.StepFinalize:
		return c.stepFinalize(ctx)
	default:
		return 0, fmt.Errorf("unknown step %d", step)
	}
}

// stepSetup records the base revision and moves the tree onto the run's
// working branch.
func (c *Controller) stepSetup(ctx context.Context) (run.Step, error) {
	base, err := c.opts.Git.RevParseHead(ctx, c.opts.WorkDir)
	if err != nil {
		return 0, err
	}
	branch := run.BranchName(c.opts.Run.ID, c.opts.Run.Task)
	if err := c.opts.Git.CheckoutNew(ctx, c.opts.WorkDir, branch); err != nil {
		return 0, err
	}
	c.summary.BaseSHA = base
	c.summary.Branch = branch
	return run.StepScope, nil
}

// stepScope has the scoper derive the scope, validates it and commits
// it. The committed definition is immutable for the rest of the run.
func (c *Controller) stepScope(ctx context.Context) (run.Step, error) {
	// the scoper reads before any scope exists; its toolset allows the
	// whole tree but only the read surface is handed over
	scoperEngine := authz.NewEngine(scope.Definition{
		Summary:     "scoper read surface",
		AllowedDirs: []string{"."},
	})
	readTools := c.newToolset(scope.RoleScoper, scoperEngine)

	def, err := c.opts.Agents.Scoper.ProposeScope(ctx, c.opts.Run.Task, readTools)
	if err != nil {
		return 0, fmt.Errorf("scoper: %w", err)
	}
	if err := def.Validate(); err != nil {
		return 0, fmt.Errorf("proposed scope invalid: %w", err)
	}

	c.engine = authz.NewEngine(def,
		authz.WithAudit(c.opts.Run.ID, c.opts.Audit),
		authz.WithDenialHook(func(string) { c.countScopeDenial(ctx) }),
	)
	c.toolset = c.newToolset(scope.RoleExecutor, c.engine)

	if err := c.arts.writeScope(c.engine.Scope()); err != nil {
		return 0, err
	}
	c.log.Info("scope committed",
		"dirs", len(def.AllowedDirs), "files", len(def.AllowedFiles), "tests", len(def.TestFiles))
	return run.StepExecute, nil
}

// stepExecute runs the executor inside the committed scope. A scope
// disagreement ends the run without touching verification.
func (c *Controller) stepExecute(ctx context.Context) (run.Step, error) {
	dis, err := c.opts.Agents.Executor.Execute(ctx, c.opts.Run.Task, c.toolset)
	if err != nil {
		return 0, fmt.Errorf("executor: %w", err)
	}
	if dis != nil {
		c.outcome = run.OutcomeScopeDisagreement
		c.summary.ExecutorReasoning = dis.Reasoning
		c.summary.SuggestedAdditions = dis.SuggestedAdditions
		c.log.Warn("executor declined the committed scope", "suggested", dis.SuggestedAdditions)
		return run.StepFinalize, nil
	}
	return run.StepLint, nil
}

func (c *Controller) stepLint(ctx context.Context) (run.Step, error) {
	rep, err := c.opts.Verifier.Lint(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.arts.writeText(artifactLintReport, rep.Output); err != nil {
		return 0, err
	}
	if rep.Passed {
		return run.StepTest, nil
	}
	c.countVerifierFailure(ctx)
	return run.StepFixLint, nil
}

// stepFixLint applies the mechanical auto-fix, then spends the single
// lint fixer invocation if the tree is still dirty. A lint failure that
// survives both ends the run as verification_failure.
func (c *Controller) stepFixLint(ctx context.Context) (run.Step, error) {
	rep, err := c.opts.Verifier.FixLint(ctx)
	if err != nil {
		return 0, err
	}
	if !rep.Passed {
		if err := c.invokeFixer(ctx, rep); err != nil {
			return 0, err
		}
		rep, err = c.opts.Verifier.Lint(ctx)
		if err != nil {
			return 0, err
		}
	}
	if err := c.arts.writeText(artifactLintReport, rep.Output); err != nil {
		return 0, err
	}
	if !rep.Passed {
		c.outcome = run.OutcomeVerificationFailure
		c.summary.Error = "lint failed after fix attempts"
		return run.StepFinalize, nil
	}
	return run.StepTest, nil
}

func (c *Controller) stepTest(ctx context.Context) (run.Step, error) {
	rep, err := c.opts.Verifier.Test(ctx)
	if err != nil {
		return 0, err
	}
	c.lastTest = rep
	if err := c.arts.writeText(artifactTestOutput, rep.Output); err != nil {
		return 0, err
	}
	if rep.Passed {
		return run.StepFinalize, nil
	}
	c.countVerifierFailure(ctx)
	return run.StepFixTest, nil
}

// stepFixTest spends the single test fixer invocation.
func (c *Controller) stepFixTest(ctx context.Context) (run.Step, error) {
	if err := c.invokeFixer(ctx, c.lastTest); err != nil {
		return 0, err
	}
	return run.StepFinalTest, nil
}

// stepFinalTest is the last verification pass. There is no further fix
// budget; a failure here is terminal.
func (c *Controller) stepFinalTest(ctx context.Context) (run.Step, error) {
	rep, err := c.opts.Verifier.Test(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.arts.writeText(artifactTestOutput, rep.Output); err != nil {
		return 0, err
	}
	if !rep.Passed {
		c.outcome = run.OutcomeVerificationFailure
		c.summary.Error = "tests failed after fix attempt"
		c.countVerifierFailure(ctx)
	}
	return run.StepFinalize, nil
}

// stepFinalize reconciles the tree, commits in-scope work and pushes
// the branch. Push failure is logged, never fatal: the commit is the
// deliverable, the push a convenience.
func (c *Controller) stepFinalize(ctx context.Context) (run.Step, error) {
	if c.engine != nil {
		reverted, err := c.engine.Reconcile(ctx, c.opts.Git, c.opts.WorkDir, c.log)
		if err != nil {
			return 0, err
		}
		if len(reverted) > 0 {
			c.log.Warn("reconciliation reverted out-of-scope changes", "paths", reverted)
		}
	}

	if c.outcome != "" {
		return 0, nil
	}

	entries, err := c.opts.Git.StatusPorcelain(ctx, c.opts.WorkDir)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		c.log.Info("nothing to commit")
		c.outcome = run.OutcomeSuccess
		return 0, nil
	}

	if err := c.opts.Git.AddAll(ctx, c.opts.WorkDir); err != nil {
		return 0, err
	}
	msg := fmt.Sprintf("%s %s (run %s)", c.opts.CommitPrefix, c.opts.Run.Task, c.opts.Run.ID)
	if err := c.opts.Git.Commit(ctx, c.opts.WorkDir, msg); err != nil {
		return 0, err
	}
	head, err := c.opts.Git.RevParseHead(ctx, c.opts.WorkDir)
	if err != nil {
		return 0, err
	}
	c.summary.HeadSHA = head

	if err := c.writeDiffArtifacts(ctx); err != nil {
		return 0, err
	}

	if c.opts.Push {
		if err := c.opts.Git.Push(ctx, c.opts.WorkDir); err != nil {
			c.log.Warn("branch push failed; commit is preserved locally", "error", err)
		}
	}

	c.outcome = run.OutcomeSuccess
	return 0, nil
}

func (c *Controller) writeDiffArtifacts(ctx context.Context) error {
	revRange := c.summary.BaseSHA + "..HEAD"
	patch, err := c.opts.Git.Diff(ctx, c.opts.WorkDir, revRange)
	if err != nil {
		return err
	}
	if err := c.arts.writeText(artifactDiff, patch); err != nil {
		return err
	}
	stats, err := c.opts.Git.DiffStat(ctx, c.opts.WorkDir, revRange)
	if err != nil {
		return err
	}
	return c.arts.writeText(artifactDiffStats, stats)
}

// invokeFixer runs the fixer under a scope narrowed to the files the
// run already touched plus the test files.
func (c *Controller) invokeFixer(ctx context.Context, rep verifier.Report) error {
	fixEngine := authz.NewEngine(c.engine.FixerScope(),
		authz.WithAudit(c.opts.Run.ID, c.opts.Audit),
		authz.WithDenialHook(func(string) { c.countScopeDenial(ctx) }),
	)
	fixTools := c.newToolset(scope.RoleFixer, fixEngine)
	if err := c.opts.Agents.Fixer.Fix(ctx, c.opts.Run.Task, rep, fixTools); err != nil {
		return fmt.Errorf("fixer (%s): %w", rep.Kind, err)
	}
	// fixer writes count as run writes; they are in scope by construction
	for _, p := range fixEngine.Writes() {
		c.engine.RecordWrite(p)
	}
	return nil
}

func (c *Controller) newToolset(role scope.Role, engine *authz.Engine) *tools.Toolset {
	return tools.NewToolset(
		c.opts.WorkDir, role, engine, c.opts.Rules, c.opts.Audit,
		c.opts.Run.ID, c.opts.Commands.ShellObserver(), c.opts.ShellTimeout,
	)
}

func (c *Controller) recordStep(step run.Step, ok bool, detail string) {
	c.summary.Steps = append(c.summary.Steps, run.StepResult{
		Step:    int(step),
		Name:    step.String(),
		Success: ok,
		Detail:  detail,
	})
}

// finish seals the summary and writes the closing artifacts. It runs on
// every path out of the protocol loop, including timeout and error.
func (c *Controller) finish(ctx context.Context) {
	if c.outcome == "" {
		c.outcome = run.OutcomeError
	}
	c.opts.Run.Outcome = c.outcome
	c.summary.Outcome = c.outcome
	c.summary.EndedAt = time.Now().UTC()

	if err := c.opts.Commands.WriteFile(filepath.Join(c.arts.dir, artifactCommands)); err != nil {
		c.log.Error("command log write failed", "error", err)
	}
	if err := c.arts.writeSummary(c.summary); err != nil {
		c.log.Error("summary write failed", "error", err)
	}

	// events and metrics must outlive a cancelled run context
	ctx = context.WithoutCancel(ctx)
	c.publish(ctx, eventsink.TypeRunCompleted, map[string]any{"outcome": string(c.outcome)})
	if c.opts.Metrics != nil {
		c.opts.Metrics.RunsCompleted.Add(ctx, 1)
		c.opts.Metrics.RunDuration.Record(ctx, c.summary.EndedAt.Sub(c.summary.StartedAt).Seconds())
	}
	c.log.Info("run finished", "outcome", c.outcome)
}

func (c *Controller) countScopeDenial(ctx context.Context) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.ScopeDenials.Add(context.WithoutCancel(ctx), 1)
	}
}

func (c *Controller) countVerifierFailure(ctx context.Context) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.VerifierFailures.Add(ctx, 1)
	}
}

func (c *Controller) publish(ctx context.Context, typ string, fields map[string]any) {
	ev := eventsink.Event{
		Type:   typ,
		RunID:  c.opts.Run.ID,
		At:     time.Now().UTC(),
		Fields: fields,
	}
	if err := c.opts.Events.Publish(ctx, ev); err != nil {
		c.log.Warn("event publish failed", "type", typ, "error", err)
	}
}
