// Package cmd defines and implements the CLI commands for the newswatch
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/config"
	"github.com/tkoide/newswatch/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newswatch",
		Short: "Incremental news article enrichment pipeline",
		Long: `newswatch ingests news articles found via keyword search, then enriches
each record through a fixed sequence of stages: full-body fetch, AI
classification, tracked-entity classification, and comment collection.
Every stage writes back immediately, so an interrupted run resumes
exactly where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(newRunCmd())

	return cmd
}

// loadConfigAndLogger builds the config and the global logger from the
// --config flag plus environment.
func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point. A failed run, including an abort on
// model quota exhaustion, exits non-zero so schedulers notice.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
