// Package main is the entry point for the rustaceans-sync server.
//
// main only reads configuration, builds the logger and hands over to
// internal/server. Everything else lives in internal packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rustaceans-org/rustaceans-sync/internal/config"
	"github.com/rustaceans-org/rustaceans-sync/internal/logging"
	"github.com/rustaceans-org/rustaceans-sync/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default $"+config.ConfigFileEnv+")")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
