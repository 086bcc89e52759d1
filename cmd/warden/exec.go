package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wardenworks/warden/internal/adapter/natsevents"
	"github.com/wardenworks/warden/internal/adapter/objectstore"
	"github.com/wardenworks/warden/internal/adapter/otel"
	"github.com/wardenworks/warden/internal/adapter/shellverifier"
	_ "github.com/wardenworks/warden/internal/adapter/stubagent"
	"github.com/wardenworks/warden/internal/audit"
	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/controller"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/git"
	"github.com/wardenworks/warden/internal/port/agent"
	"github.com/wardenworks/warden/internal/port/eventsink"
	"github.com/wardenworks/warden/internal/rules"
)

var execCmd = &cobra.Command{
	Use:    "exec",
	Short:  "Run the protocol inside an isolation environment",
	Hidden: true,
	Long: `exec is the in-sandbox entrypoint. It reads TASK, RUN_ID, WORK_DIR
and OUTPUT_DIR from the environment, drives the run protocol to a
terminal outcome and writes the artifacts. Exit code 0 means success.`,
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog.Close()

	task := os.Getenv("TASK")
	if task == "" {
		return fmt.Errorf("TASK is required")
	}
	runID := envOr("RUN_ID", uuid.NewString())
	workDir := envOr("WORK_DIR", "/work/repo")
	outputDir := envOr("OUTPUT_DIR", "/output")
	repoDir := envOr("REPO_DIR", "/repo")

	timeout := cfg.Runner.Timeout
	if v := os.Getenv("WARDEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	kind := run.BackendLocal
	if os.Getenv("WARDEN_BACKEND_KIND") == string(run.BackendRemote) {
		kind = run.BackendRemote
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	commands := controller.NewCommandLog()
	gitRunner := git.NewRunner(git.NewPool(cfg.Git.MaxConcurrent), cfg.Git.CommandTimeout, commands.GitObserver())

	// the repository is mounted read-only; work on a scratch clone
	if _, err := os.Stat(filepath.Join(workDir, ".git")); err != nil {
		log.Info("cloning repository", "src", repoDir, "dst", workDir)
		if err := gitRunner.Clone(ctx, repoDir, workDir); err != nil {
			return err
		}
	}

	recorder, err := audit.NewRecorder(filepath.Join(outputDir, "audit.log"), 256)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	closeAudit := sync.OnceValue(recorder.Close)
	defer func() {
		if err := closeAudit(); err != nil {
			log.Error("audit close failed", "error", err)
		}
	}()

	cache, err := rules.NewCache(cfg.Runner.RuleCacheBytes)
	if err != nil {
		return fmt.Errorf("rule cache: %w", err)
	}
	defer cache.Close()
	loader := rules.NewLoader(workDir, cfg.Runner.RulesFilename, cache)

	var events eventsink.Sink = eventsink.Nop{}
	if cfg.NATS.URL != "" {
		sink, err := natsevents.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			log.Warn("event sink unavailable; continuing without it", "error", err)
		} else {
			events = sink
			defer func() { _ = sink.Close() }()
		}
	}

	agentName := cfg.Runner.AgentBackend
	if os.Getenv("WARDEN_STUBS") == "1" {
		agentName = "stub"
	}
	agents, err := agent.New(agentName, log)
	if err != nil {
		return err
	}

	verif := shellverifier.New(workDir,
		cfg.Runner.LintCommand, cfg.Runner.LintFixCommand, cfg.Runner.TestCommand,
		cfg.Runner.CommandTimeout, log)

	ctrl, err := controller.New(controller.Options{
		Run: &run.Run{
			ID:          runID,
			Task:        task,
			RepoRef:     repoDir,
			BackendKind: kind,
			Timeout:     timeout,
		},
		WorkDir:      workDir,
		OutputDir:    outputDir,
		Agents:       agents,
		Verifier:     verif,
		Git:          gitRunner,
		Rules:        loader,
		Audit:        recorder,
		Events:       events,
		Metrics:      metrics,
		Log:          log,
		Commands:     commands,
		CommitPrefix: cfg.Runner.CommitPrefix,
		ShellTimeout: cfg.Runner.CommandTimeout,
		Push:         kind == run.BackendRemote,
	})
	if err != nil {
		return err
	}

	summary, runErr := ctrl.Execute(ctx)

	// remote runs ship their artifacts to the store the launcher polls;
	// the audit log must be flushed first, and a failed upload must not
	// mask the run outcome
	if kind == run.BackendRemote && cfg.ObjectStore.Endpoint != "" {
		if err := closeAudit(); err != nil {
			log.Error("audit close failed", "error", err)
		}
		if err := uploadArtifacts(context.WithoutCancel(ctx), cfg, runID, outputDir); err != nil {
			log.Warn("artifact upload failed", "run_id", runID, "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", summary.RunID, summary.Outcome)
	if runErr != nil {
		return runErr
	}
	if summary.Outcome != run.OutcomeSuccess {
		return fmt.Errorf("run ended with outcome %s", summary.Outcome)
	}
	return nil
}

func uploadArtifacts(ctx context.Context, cfg *config.Config, runID, dir string) error {
	store, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}
	return store.UploadRun(ctx, runID, dir)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
