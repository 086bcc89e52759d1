package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Runner.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Runner.Timeout)
	}
	if cfg.Runner.RulesFilename != "AGENTS.md" {
		t.Errorf("expected rules filename AGENTS.md, got %s", cfg.Runner.RulesFilename)
	}
	if cfg.Sandbox.NetworkMode != "none" {
		t.Errorf("expected sandbox network none, got %s", cfg.Sandbox.NetworkMode)
	}
	if cfg.Git.MaxConcurrent != 4 {
		t.Errorf("expected git max_concurrent 4, got %d", cfg.Git.MaxConcurrent)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
logging:
  level: "debug"
runner:
  test_command: "pytest -x"
  timeout: 20m
sandbox:
  image: "warden-runner:dev"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Runner.TestCommand != "pytest -x" {
		t.Errorf("expected test_command pytest -x, got %s", cfg.Runner.TestCommand)
	}
	if cfg.Runner.Timeout != 20*time.Minute {
		t.Errorf("expected timeout 20m, got %v", cfg.Runner.Timeout)
	}
	if cfg.Sandbox.Image != "warden-runner:dev" {
		t.Errorf("expected image warden-runner:dev, got %s", cfg.Sandbox.Image)
	}
	// Unchanged fields keep defaults.
	if cfg.Runner.LintCommand != "golangci-lint run ./..." {
		t.Errorf("expected default lint command, got %s", cfg.Runner.LintCommand)
	}
}

func TestLoadYAMLMissingFileIsNotAnError(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WARDEN_LOG_LEVEL", "warn")
	t.Setenv("WARDEN_TIMEOUT", "90s")
	t.Setenv("WARDEN_GIT_MAX_CONCURRENT", "8")
	t.Setenv("WARDEN_STORE_USE_SSL", "true")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Runner.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Runner.Timeout)
	}
	if cfg.Git.MaxConcurrent != 8 {
		t.Errorf("expected git max_concurrent 8, got %d", cfg.Git.MaxConcurrent)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Error("expected object store use_ssl true")
	}
}

func TestLoadEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("WARDEN_TIMEOUT", "not-a-duration")
	t.Setenv("WARDEN_GIT_MAX_CONCURRENT", "many")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Runner.Timeout != 10*time.Minute {
		t.Errorf("invalid duration should keep default, got %v", cfg.Runner.Timeout)
	}
	if cfg.Git.MaxConcurrent != 4 {
		t.Errorf("invalid int should keep default, got %d", cfg.Git.MaxConcurrent)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := Defaults()
	bad.Runner.TestCommand = ""
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for empty test_command")
	}

	bad = Defaults()
	bad.Runner.Timeout = 0
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for zero timeout")
	}

	bad = Defaults()
	bad.Git.MaxConcurrent = 0
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for zero git.max_concurrent")
	}
}
