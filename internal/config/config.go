// Package config provides hierarchical configuration loading for Warden.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the warden CLI and the
// in-sandbox protocol runner.
type Config struct {
	Logging     Logging     `yaml:"logging"`
	Runner      Runner      `yaml:"runner"`
	Sandbox     Sandbox     `yaml:"sandbox"`
	Cloud       Cloud       `yaml:"cloud"`
	ObjectStore ObjectStore `yaml:"object_store"`
	NATS        NATS        `yaml:"nats"`
	Git         Git         `yaml:"git"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Runner holds protocol-runner configuration: verifier commands, the
// global run timeout and the rule-file name injected on agent reads.
type Runner struct {
	Timeout        time.Duration `yaml:"timeout"`
	LintCommand    string        `yaml:"lint_command"`
	LintFixCommand string        `yaml:"lint_fix_command"`
	TestCommand    string        `yaml:"test_command"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	RulesFilename  string        `yaml:"rules_filename"`
	RuleCacheBytes int64         `yaml:"rule_cache_bytes"`
	CommitPrefix   string        `yaml:"commit_prefix"`
	AgentBackend   string        `yaml:"agent_backend"`
}

// Sandbox holds local isolation (docker) configuration.
type Sandbox struct {
	Image       string `yaml:"image"`
	OutputBase  string `yaml:"output_base"`
	EnvFile     string `yaml:"env_file"`
	NetworkMode string `yaml:"network_mode"`
	ScratchSize string `yaml:"scratch_size"`
	TmpSize     string `yaml:"tmp_size"`
	User        string `yaml:"user"`
}

// Cloud holds remote task-execution service configuration. The push
// credential is never stored here; it is read from WARDEN_CLOUD_TOKEN at
// launch time and handed to the task with a short TTL.
type Cloud struct {
	APIBase      string        `yaml:"api_base"`
	Repo         string        `yaml:"repo"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollBuffer   time.Duration `yaml:"poll_buffer"`
	MaxFailures  int           `yaml:"max_failures"`
	BreakerReset time.Duration `yaml:"breaker_reset"`
}

// ObjectStore holds S3-compatible artifact storage configuration used by
// remote runs.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// NATS holds optional run-event publishing configuration. An empty URL
// disables publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// Git holds git CLI execution configuration.
type Git struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Service: "warden",
		},
		Runner: Runner{
			Timeout:        10 * time.Minute,
			LintCommand:    "golangci-lint run ./...",
			LintFixCommand: "golangci-lint run --fix ./...",
			TestCommand:    "go test ./...",
			CommandTimeout: 5 * time.Minute,
			RulesFilename:  "AGENTS.md",
			RuleCacheBytes: 4 << 20,
			CommitPrefix:   "warden:",
			AgentBackend:   "stub",
		},
		Sandbox: Sandbox{
			Image:       "warden-runner:latest",
			OutputBase:  "/tmp/warden",
			NetworkMode: "none",
			ScratchSize: "4g",
			TmpSize:     "1g",
			User:        "1000:1000",
		},
		Cloud: Cloud{
			PollInterval: 10 * time.Second,
			PollBuffer:   5 * time.Minute,
			MaxFailures:  5,
			BreakerReset: 30 * time.Second,
		},
		ObjectStore: ObjectStore{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			Bucket:   "warden-artifacts",
		},
		Git: Git{
			MaxConcurrent:  4,
			CommandTimeout: 2 * time.Minute,
		},
	}
}
