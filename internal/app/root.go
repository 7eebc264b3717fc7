package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/config"
)

var (
	dbPath    string
	envName   string
	exportDir string

	// RootCmd is the root command for envtrack
	RootCmd = &cobra.Command{
		Use:   "envtrack",
		Short: "Keep conda, pip and R environments reproducible",
		Long: `envtrack installs and removes packages in conda environments through
conda, pip and R, and records every change it makes.

After each successful install or remove the installed packages are re-read
from the package managers, checked against what was asked for, appended to the
environment's history and exported. A failed change leaves the recorded state
exactly as it was.

Quick Start:
  1. envtrack create --name analysis python=3.11 r-base
  2. envtrack install --name analysis -e r dplyr
  3. envtrack history --name analysis
  4. envtrack replay analysis-copy --source analysis

Exports are written to $ENVTRACK_HOME/exports/<name>/ (environment.yml,
install.R and history.yaml) unless --export-dir or ENVTRACK_EXPORT_DIR is set.

Examples:
  # Install pip packages
  envtrack install -n analysis -e pip requests==2.31.0

  # Show the recorded dependency snapshot
  envtrack deps -n analysis

  # Check for changes made outside envtrack
  envtrack drift -n analysis`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: $ENVTRACK_HOME/envtrack.db)")
	RootCmd.PersistentFlags().StringVarP(&envName, "name", "n", "", "environment name")
	RootCmd.PersistentFlags().StringVar(&exportDir, "export-dir", "", "export directory (default: $ENVTRACK_HOME/exports)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// package manager.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

// getDBPath returns the database path, using the flag value or the
// configured home.
func getDBPath(cfg *config.Config) (string, error) {
	path := dbPath
	if path == "" {
		path = cfg.DBPath()
	}
	if path == ":memory:" {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}

// getExportDir returns the export directory, using the flag value or the
// configured default.
func getExportDir(cfg *config.Config) string {
	if exportDir != "" {
		return exportDir
	}
	return cfg.ExportPath()
}

// getDefaultPIDFile returns the default PID file path of the watcher for name
func getDefaultPIDFile(cfg *config.Config, name string) (string, error) {
	if err := os.MkdirAll(cfg.Home, 0755); err != nil {
		return "", fmt.Errorf("failed to create envtrack directory: %w", err)
	}
	return filepath.Join(cfg.Home, "watch-"+name+".pid"), nil
}

// getDefaultLogFile returns the default log file path of the watcher for name
func getDefaultLogFile(cfg *config.Config, name string) (string, error) {
	if err := os.MkdirAll(cfg.Home, 0755); err != nil {
		return "", fmt.Errorf("failed to create envtrack directory: %w", err)
	}
	return filepath.Join(cfg.Home, "watch-"+name+".log"), nil
}
