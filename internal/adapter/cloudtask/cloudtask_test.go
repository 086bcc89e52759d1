package cloudtask

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/port/backend"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(apiBase string) config.Cloud {
	return config.Cloud{
		APIBase:      apiBase,
		Repo:         "org/app",
		PollInterval: 10 * time.Millisecond,
		PollBuffer:   time.Second,
		MaxFailures:  5,
		BreakerReset: 100 * time.Millisecond,
	}
}

func TestLaunch_SubmitPollComplete(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad submit body: %v", err)
			}
			if req.RunID != "r1" || req.Repo != "org/app" {
				t.Errorf("submit = %+v", req)
			}
			if req.Env["WARDEN_BACKEND_KIND"] != "remote" {
				t.Errorf("backend kind not forwarded: %v", req.Env)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
				t.Errorf("Authorization = %q", got)
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(taskStatus{TaskID: "t-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/t-9":
			st := taskStatus{TaskID: "t-9", Status: "running"}
			if polls.Add(1) >= 3 {
				st = taskStatus{TaskID: "t-9", Status: "stopped", Outcome: run.OutcomeSuccess, Branch: "warden/r1/fix"}
			}
			json.NewEncoder(w).Encode(st)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	b := New(testConfig(srv.URL), nil, t.TempDir(), discard())
	b.token = func() string { return "sekrit" }

	res, err := b.Launch(context.Background(), backend.LaunchSpec{
		RunID:   "r1",
		Task:    "fix it",
		Timeout: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != run.OutcomeSuccess || res.Branch != "warden/r1/fix" {
		t.Errorf("result = %+v", res)
	}
	if res.BackendKind != run.BackendRemote {
		t.Errorf("BackendKind = %q", res.BackendKind)
	}
}

func TestLaunch_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := New(testConfig(srv.URL), nil, t.TempDir(), discard())
	if _, err := b.Launch(context.Background(), backend.LaunchSpec{RunID: "r1"}); err == nil {
		t.Error("expected submit error")
	}
}

func TestLaunch_PollSurvivesTransientFailures(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1"})
			return
		}
		switch polls.Add(1) {
		case 1, 2:
			http.Error(w, "blip", http.StatusBadGateway)
		default:
			json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1", Status: "stopped", Outcome: run.OutcomeSuccess})
		}
	}))
	defer srv.Close()

	b := New(testConfig(srv.URL), nil, t.TempDir(), discard())
	res, err := b.Launch(context.Background(), backend.LaunchSpec{RunID: "r1", Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != run.OutcomeSuccess {
		t.Errorf("Outcome = %q", res.Outcome)
	}
}

func TestLaunch_PollDeadlineReportsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1"})
			return
		}
		json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1", Status: "running"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PollBuffer = 30 * time.Millisecond
	b := New(cfg, nil, t.TempDir(), discard())

	res, err := b.Launch(context.Background(), backend.LaunchSpec{RunID: "r1", Timeout: 0})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != run.OutcomeTimeout {
		t.Errorf("Outcome = %q, want timeout", res.Outcome)
	}
}

func TestLaunch_CancelAbandonsPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1"})
			return
		}
		json.NewEncoder(w).Encode(taskStatus{TaskID: "t-1", Status: "running"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := New(testConfig(srv.URL), nil, t.TempDir(), discard())
	if _, err := b.Launch(ctx, backend.LaunchSpec{RunID: "r1", Timeout: time.Minute}); err == nil {
		t.Error("expected context error when polling is abandoned")
	}
}

func TestName(t *testing.T) {
	b := New(testConfig("http://x"), nil, t.TempDir(), discard())
	if b.Name() != "remote" {
		t.Errorf("Name() = %q", b.Name())
	}
}
