package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rustaceans-org/rustaceans-sync/internal/config"
	"github.com/rustaceans-org/rustaceans-sync/internal/logging"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "rustaceans-sync",
	Short: "Keep the rustaceans.org directory in sync with its GitHub repository",
	Long: `rustaceans-sync mirrors the per-user JSON profile files of the rustaceans
repository into the searchable SQLite directory served by the website.

Configuration comes from built-in defaults, an optional config file and the
environment (DB_PATH, GITHUB_TOKEN, GITHUB_REPO, DATA_DIR, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $"+config.ConfigFileEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

// loadConfig reads and validates the configuration and builds the logger.
// The returned Closer releases the log file.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	// Logs go to stderr so stdout carries only the command's output.
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stdout: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}
