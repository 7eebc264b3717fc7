package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/output"
)

var depsEcosystems []string

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the recorded dependency snapshot",
	Long: `Show the packages recorded as installed after the last successful change,
per ecosystem. Packages that were explicitly requested are marked with "*".

The snapshot is not re-read from the package managers; use 'envtrack drift'
to compare it with what is installed now.

Examples:
  envtrack deps -n analysis
  envtrack deps -n analysis -e r -e pip`,
	Args: cobra.NoArgs,
	RunE: runDeps,
}

func init() {
	depsCmd.Flags().StringSliceVarP(&depsEcosystems, "ecosystem", "e", nil, "only show these ecosystems (conda, pip, r)")

	RootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}
	ecosystems, err := parseEcosystems(depsEcosystems)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	env, err := s.load(cmd.Context(), name)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderDependencyTable(env.Dependencies(), ecosystems...))
	return nil
}
