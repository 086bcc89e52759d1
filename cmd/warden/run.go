package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wardenworks/warden/internal/adapter/cloudtask"
	"github.com/wardenworks/warden/internal/adapter/dockerlocal"
	"github.com/wardenworks/warden/internal/adapter/objectstore"
	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/port/backend"
)

var (
	flagCloud   bool
	flagTimeout time.Duration
	flagRepo    string
	flagStubs   bool
)

var runCmd = &cobra.Command{
	Use:   "run <task> [task...]",
	Short: "Launch one or more isolated agent runs",
	Long: `Launch each task as its own isolated run. Tasks run concurrently,
each on a fresh branch. The command exits 0 only if every run ends in
success; each run's outcome is printed either way.

Examples:
  warden run "fix the login redirect"
  warden run --cloud --timeout 45m "migrate the user table" "update the docs"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRuns,
}

func init() {
	runCmd.Flags().BoolVar(&flagCloud, "cloud", false, "launch on the remote backend")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-run timeout (default from config)")
	runCmd.Flags().StringVar(&flagRepo, "repo", ".", "repository path (local) or slug (cloud)")
	runCmd.Flags().BoolVar(&flagStubs, "stubs", false, "run with deterministic stub agents")
	rootCmd.AddCommand(runCmd)
}

func runRuns(cmd *cobra.Command, tasks []string) error {
	cfg, log, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog.Close()

	registerBackends(cfg, log)

	name := string(run.BackendLocal)
	if flagCloud {
		name = string(run.BackendRemote)
	}
	be, err := backend.New(name)
	if err != nil {
		return err
	}

	timeout := cfg.Runner.Timeout
	if flagTimeout > 0 {
		timeout = flagTimeout
	}
	repoRef, err := resolveRepo(cfg)
	if err != nil {
		return err
	}

	results := make([]*backend.RunResult, len(tasks))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, task := range tasks {
		g.Go(func() error {
			spec := backend.LaunchSpec{
				RunID:   uuid.NewString(),
				Task:    task,
				RepoRef: repoRef,
				Timeout: timeout,
				Env:     launchEnv(),
			}
			log.Info("launching run", "run_id", spec.RunID, "backend", be.Name(), "task", task)
			res, err := be.Launch(ctx, spec)
			if err != nil {
				return fmt.Errorf("run %s: %w", spec.RunID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for i, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", res.RunID, res.Outcome, res.Branch, tasks[i])
		if res.Outcome != run.OutcomeSuccess {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not succeed", failed, len(results))
	}
	return nil
}

func registerBackends(cfg *config.Config, log *slog.Logger) {
	backend.Register(string(run.BackendLocal), func() (backend.Backend, error) {
		return dockerlocal.New(cfg.Sandbox, log), nil
	})
	backend.Register(string(run.BackendRemote), func() (backend.Backend, error) {
		var fetcher cloudtask.ArtifactFetcher
		if cfg.ObjectStore.Endpoint != "" {
			store, err := objectstore.New(cfg.ObjectStore)
			if err != nil {
				return nil, err
			}
			fetcher = store
		}
		return cloudtask.New(cfg.Cloud, fetcher, cfg.Sandbox.OutputBase, log), nil
	})
}

func resolveRepo(cfg *config.Config) (string, error) {
	if flagCloud {
		if flagRepo != "." {
			return flagRepo, nil
		}
		return cfg.Cloud.Repo, nil
	}
	abs, err := filepath.Abs(flagRepo)
	if err != nil {
		return "", fmt.Errorf("repo path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
		return "", fmt.Errorf("%s is not a git repository", abs)
	}
	return abs, nil
}

func launchEnv() map[string]string {
	if !flagStubs {
		return nil
	}
	return map[string]string{"WARDEN_STUBS": "1"}
}
