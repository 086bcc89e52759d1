// Package cloudtask launches runs on a managed task-execution service.
// The host submits the task, polls its status at a bounded interval and
// downloads the artifacts from the object store once the task finishes.
// Polling is observational: abandoning it never cancels the task.
package cloudtask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/port/backend"
	"github.com/wardenworks/warden/internal/resilience"
)

// TokenEnv is the environment variable holding the short-lived
// credential handed to the remote task. It is never persisted.
const TokenEnv = "WARDEN_CLOUD_TOKEN"

// ArtifactFetcher downloads a finished run's artifacts into a local
// directory, returning the number of objects fetched.
type ArtifactFetcher interface {
	DownloadRun(ctx context.Context, runID, destDir string) (int, error)
}

// Backend implements backend.Backend against the task-execution API.
type Backend struct {
	cfg       config.Cloud
	client    *http.Client
	breaker   *resilience.Breaker
	artifacts ArtifactFetcher
	outBase   string
	log       *slog.Logger

	token func() string
}

// New creates the remote backend. artifacts may be nil, in which case
// results carry no local artifact directory.
func New(cfg config.Cloud, artifacts ArtifactFetcher, outBase string, log *slog.Logger) *Backend {
	return &Backend{
		cfg:       cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		breaker:   resilience.NewBreaker(cfg.MaxFailures, cfg.BreakerReset),
		artifacts: artifacts,
		outBase:   outBase,
		log:       log,
		token:     func() string { return os.Getenv(TokenEnv) },
	}
}

func (b *Backend) Name() string { return string(run.BackendRemote) }

type submitRequest struct {
	RunID          string            `json:"run_id"`
	Task           string            `json:"task"`
	Repo           string            `json:"repo"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Env            map[string]string `json:"env,omitempty"`
}

type taskStatus struct {
	TaskID  string      `json:"task_id"`
	Status  string      `json:"status"` // pending | running | stopped
	Outcome run.Outcome `json:"outcome,omitempty"`
	Branch  string      `json:"branch,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Launch submits the run and blocks polling until the task stops or the
// poll deadline (run timeout plus a buffer) passes. A task that outlives
// the deadline is reported as a timeout but not cancelled.
func (b *Backend) Launch(ctx context.Context, spec backend.LaunchSpec) (*backend.RunResult, error) {
	taskID, err := b.submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	b.log.Info("cloud task submitted", "run_id", spec.RunID, "task_id", taskID)

	status, err := b.poll(ctx, spec, taskID)
	if err != nil {
		return nil, err
	}

	res := &backend.RunResult{
		RunID:       spec.RunID,
		Outcome:     status.Outcome,
		BackendKind: run.BackendRemote,
		Branch:      status.Branch,
	}
	if res.Outcome == "" {
		res.Outcome = run.OutcomeError
	}

	if b.artifacts != nil {
		dest := filepath.Join(b.outBase, spec.RunID)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return res, fmt.Errorf("cloudtask: artifact dir: %w", err)
		}
		n, err := b.artifacts.DownloadRun(ctx, spec.RunID, dest)
		if err != nil {
			b.log.Warn("artifact download failed", "run_id", spec.RunID, "error", err)
			return res, nil
		}
		res.ArtifactDir = dest
		b.log.Info("artifacts downloaded", "run_id", spec.RunID, "objects", n)

		if summary, err := readSummary(dest); err == nil {
			res.Summary = summary
			res.Outcome = summary.Outcome
			res.Branch = summary.Branch
		}
	}
	return res, nil
}

func (b *Backend) submit(ctx context.Context, spec backend.LaunchSpec) (string, error) {
	// the in-sandbox runner keys push and artifact upload off this
	env := map[string]string{"WARDEN_BACKEND_KIND": string(run.BackendRemote)}
	for k, v := range spec.Env {
		env[k] = v
	}
	body, err := json.Marshal(submitRequest{
		RunID:          spec.RunID,
		Task:           spec.Task,
		Repo:           b.repoRef(spec),
		TimeoutSeconds: int(spec.Timeout.Seconds()),
		Env:            env,
	})
	if err != nil {
		return "", fmt.Errorf("cloudtask: marshal submit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIBase+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("cloudtask: submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudtask: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("cloudtask: submit rejected: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var status taskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("cloudtask: submit response: %w", err)
	}
	if status.TaskID == "" {
		return "", fmt.Errorf("cloudtask: submit response missing task id")
	}
	return status.TaskID, nil
}

func (b *Backend) poll(ctx context.Context, spec backend.LaunchSpec, taskID string) (*taskStatus, error) {
	deadline := time.Now().Add(spec.Timeout + b.cfg.PollBuffer)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cloudtask: poll abandoned (task %s keeps running): %w", taskID, ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			b.log.Warn("poll deadline passed", "run_id", spec.RunID, "task_id", taskID)
			return &taskStatus{TaskID: taskID, Outcome: run.OutcomeTimeout}, nil
		}

		var status *taskStatus
		err := b.breaker.Execute(func() error {
			var err error
			status, err = b.fetchStatus(ctx, taskID)
			return err
		})
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				b.log.Warn("status polling suspended", "task_id", taskID)
				continue
			}
			b.log.Warn("status poll failed", "task_id", taskID, "error", err)
			continue
		}

		if status.Status == "stopped" {
			return status, nil
		}
	}
}

func (b *Backend) fetchStatus(ctx context.Context, taskID string) (*taskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.APIBase+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudtask: status request: %w", err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudtask: status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloudtask: status %s: %s", taskID, resp.Status)
	}

	var status taskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("cloudtask: status response: %w", err)
	}
	return &status, nil
}

func (b *Backend) authorize(req *http.Request) {
	if tok := b.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func (b *Backend) repoRef(spec backend.LaunchSpec) string {
	if spec.RepoRef != "" {
		return spec.RepoRef
	}
	return b.cfg.Repo
}

func readSummary(dir string) (*run.Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, "run_summary.json")) //nolint:gosec // G304: path is under the configured output base
	if err != nil {
		return nil, err
	}
	var summary run.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
