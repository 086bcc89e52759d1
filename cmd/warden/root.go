package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wardenworks/warden/internal/config"
	"github.com/wardenworks/warden/internal/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Control plane for scoped, sandboxed code-modifying agent runs",
	Long: `warden launches autonomous code-modifying agents against a repository,
confines every run to a committed change scope, verifies the result with
lint and tests, and delivers the work as a branch with a full audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultConfigFile, "config file path")
}

// setup loads config and builds the process logger. The returned closer
// flushes async log output.
func setup() (*config.Config, *slog.Logger, logger.Closer, error) {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return cfg, log, closeLog, nil
}
