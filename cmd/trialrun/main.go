package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/trialrun/internal/config"
	"github.com/nvandessel/trialrun/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trialrun",
		Short: "Trialrun - behavioral experiment runner",
		Long: `trialrun runs behavioral experiments from a trial list.

It presents each trial through a study, records button responses from the
terminal keyboard or a simulated subject, and writes one results row per
trial attempt to a tab-separated file and a SQLite database.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.trialrun/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newSessionsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig loads the config named by --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger returns the operator console logger on stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	var w io.Writer = cmd.ErrOrStderr()
	return logging.NewLogger(cfg.Logging.Level, w)
}
