package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "warden.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "WARDEN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WARDEN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WARDEN_LOG_ASYNC")

	setDuration(&cfg.Runner.Timeout, "WARDEN_TIMEOUT")
	setString(&cfg.Runner.LintCommand, "WARDEN_LINT_COMMAND")
	setString(&cfg.Runner.LintFixCommand, "WARDEN_LINT_FIX_COMMAND")
	setString(&cfg.Runner.TestCommand, "WARDEN_TEST_COMMAND")
	setDuration(&cfg.Runner.CommandTimeout, "WARDEN_COMMAND_TIMEOUT")
	setString(&cfg.Runner.RulesFilename, "WARDEN_RULES_FILENAME")
	setInt64(&cfg.Runner.RuleCacheBytes, "WARDEN_RULE_CACHE_BYTES")
	setString(&cfg.Runner.CommitPrefix, "WARDEN_COMMIT_PREFIX")
	setString(&cfg.Runner.AgentBackend, "WARDEN_AGENT_BACKEND")

	setString(&cfg.Sandbox.Image, "WARDEN_IMAGE")
	setString(&cfg.Sandbox.OutputBase, "WARDEN_OUTPUT_BASE")
	setString(&cfg.Sandbox.EnvFile, "WARDEN_ENV_FILE")
	setString(&cfg.Sandbox.NetworkMode, "WARDEN_SANDBOX_NETWORK")
	setString(&cfg.Sandbox.ScratchSize, "WARDEN_SANDBOX_SCRATCH_SIZE")
	setString(&cfg.Sandbox.TmpSize, "WARDEN_SANDBOX_TMP_SIZE")
	setString(&cfg.Sandbox.User, "WARDEN_SANDBOX_USER")

	setString(&cfg.Cloud.APIBase, "WARDEN_CLOUD_API")
	setString(&cfg.Cloud.Repo, "WARDEN_CLOUD_REPO")
	setDuration(&cfg.Cloud.PollInterval, "WARDEN_CLOUD_POLL_INTERVAL")
	setDuration(&cfg.Cloud.PollBuffer, "WARDEN_CLOUD_POLL_BUFFER")
	setInt(&cfg.Cloud.MaxFailures, "WARDEN_CLOUD_MAX_FAILURES")
	setDuration(&cfg.Cloud.BreakerReset, "WARDEN_CLOUD_BREAKER_RESET")

	setString(&cfg.ObjectStore.Endpoint, "WARDEN_STORE_ENDPOINT")
	setString(&cfg.ObjectStore.AccessKey, "WARDEN_STORE_ACCESS_KEY")
	setString(&cfg.ObjectStore.SecretKey, "WARDEN_STORE_SECRET_KEY")
	setString(&cfg.ObjectStore.Region, "WARDEN_STORE_REGION")
	setBool(&cfg.ObjectStore.UseSSL, "WARDEN_STORE_USE_SSL")
	setString(&cfg.ObjectStore.Bucket, "WARDEN_STORE_BUCKET")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt(&cfg.Git.MaxConcurrent, "WARDEN_GIT_MAX_CONCURRENT")
	setDuration(&cfg.Git.CommandTimeout, "WARDEN_GIT_COMMAND_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Runner.Timeout <= 0 {
		return errors.New("runner.timeout must be > 0")
	}
	if cfg.Runner.TestCommand == "" {
		return errors.New("runner.test_command is required")
	}
	if cfg.Runner.LintCommand == "" {
		return errors.New("runner.lint_command is required")
	}
	if cfg.Runner.RulesFilename == "" {
		return errors.New("runner.rules_filename is required")
	}
	if cfg.Sandbox.Image == "" {
		return errors.New("sandbox.image is required")
	}
	if cfg.Git.MaxConcurrent < 1 {
		return errors.New("git.max_concurrent must be >= 1")
	}
	if cfg.Cloud.PollInterval <= 0 {
		return errors.New("cloud.poll_interval must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
