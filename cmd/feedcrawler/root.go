package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"feedcrawler/pkg/config"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "feedcrawler",
	Short: "Collect new posts from group feeds and forward them to an ingestion endpoint",
	Long: `feedcrawler restores a logged-in browser session from a cookie bundle,
scrolls group feeds and forwards every post link it has not delivered before.

Features:
  - Cookie bundle restore with login verification
  - Incremental collection backed by a durable delivery ledger
  - File, bbolt, SQLite and PostgreSQL ledgers
  - Paced delivery with retries
  - Parallel targets without duplicate deliveries
  - Live dashboard and desktop notifications`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			logLevel = "error"
			return
		}
		if cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	ui.Output = os.Stderr

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./feedcrawler.yaml or $HOME/.feedcrawler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress everything except errors")

	rootCmd.SetVersionTemplate(`feedcrawler {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags into flags and loads the configuration
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if logFile != "" {
		flags["log-file"] = logFile
	}
	return config.Load(configFile, flags)
}

// newLogger builds the process logger tagged with the build version
func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, err
	}
	return log.WithField("version", version), nil
}
