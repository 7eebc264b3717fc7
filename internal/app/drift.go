package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/output"
)

var driftFlagExitCode bool

// errDrift is returned with --exit-code when drift is found.
var errDrift = errors.New("environment has drifted from its recorded snapshot")

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare installed packages with the recorded snapshot",
	Long: `Query the package managers and list packages added, removed or changed
since the snapshot was recorded, for example by running conda or pip directly.

Nothing is recorded. Use 'envtrack refresh' to accept the changes.

Examples:
  envtrack drift -n analysis

  # Fail in CI when the environment has drifted
  envtrack drift -n analysis --exit-code`,
	Args: cobra.NoArgs,
	RunE: runDrift,
}

func init() {
	driftCmd.Flags().BoolVar(&driftFlagExitCode, "exit-code", false, "exit non-zero when drift is found")

	RootCmd.AddCommand(driftCmd)
}

func runDrift(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	env, err := s.load(ctx, name)
	if err != nil {
		return err
	}

	drift, err := env.Drift(ctx)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderDriftTable(drift))
	if len(drift) > 0 && driftFlagExitCode {
		return errDrift
	}
	return nil
}
