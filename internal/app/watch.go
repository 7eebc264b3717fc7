package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/output"
	"github.com/blackwell-systems/envtrack/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Report drift as soon as an environment changes",
		Long: `Watch an environment's package directories and report drift whenever
packages are installed or removed outside envtrack.

The conda-meta, site-packages and R library directories of the environment
are watched. Bursts of changes are coalesced before the package managers are
queried, and nothing is recorded.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process, drift is written to the log file
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  envtrack watch -n analysis

  # Run as background daemon
  envtrack watch -n analysis --daemon

  # Stop running daemon
  envtrack watch -n analysis --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: $ENVTRACK_HOME/watch-<name>.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: $ENVTRACK_HOME/watch-<name>.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	// Get default paths if not specified
	if watchPIDFile == "" {
		if watchPIDFile, err = getDefaultPIDFile(s.cfg, name); err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
	}
	if watchLogFile == "" {
		if watchLogFile, err = getDefaultLogFile(s.cfg, name); err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
	}

	if watchStop {
		return stopWatchDaemon(cmd)
	}
	if watchDaemon {
		return startWatchDaemon(cmd, name)
	}

	ctx := cmd.Context()
	if _, err := s.load(ctx, name); err != nil {
		return err
	}
	prefix, err := s.conda.Prefix(ctx, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w, err := watcher.New(&recordedState{s: s, name: name}, func(drift []environment.Drift) {
		fmt.Fprint(out, output.RenderDriftTable(drift))
	}, watcher.Dirs(prefix)...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.SetLogger(s.logger)

	if watchDaemonChild {
		// stdout and stderr are the daemon log file
		return w.Run(ctx, watchPIDFile)
	}

	fmt.Fprintf(out, "Watching %s (press Ctrl+C to stop)...\n\n", prefix)
	return w.Run(ctx, "")
}

// recordedState compares the live environment with the state last committed
// to the store, so changes envtrack makes while the watcher runs are not
// reported as drift.
type recordedState struct {
	s    *session
	name string
}

func (r *recordedState) Drift(ctx context.Context) ([]environment.Drift, error) {
	env, err := r.s.load(ctx, r.name)
	if err != nil {
		return nil, err
	}
	return env.Drift(ctx)
}

func stopWatchDaemon(cmd *cobra.Command) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command, name string) error {
	if err := watcher.StartDaemon(daemonChildArgs(name), watchPIDFile, watchLogFile); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Drift watcher for %s started\n", name)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: envtrack watch --name %s --stop\n", name)
	return nil
}

// daemonChildArgs returns the arguments the daemon re-executes itself with.
func daemonChildArgs(name string) []string {
	args := []string{"watch", "--daemon-child", "--name", name, "--pid-file", watchPIDFile}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}
	if exportDir != "" {
		args = append(args, "--export-dir", exportDir)
	}
	return args
}
