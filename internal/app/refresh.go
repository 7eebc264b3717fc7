package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshEcosystems []string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read installed packages into the dependency snapshot",
	Long: `Query the package managers and replace the recorded dependency snapshot
with what is installed now, then export.

The history is not changed. Use this after changes made outside envtrack
that should be accepted; 'envtrack drift' shows them first.

Examples:
  envtrack refresh -n analysis
  envtrack refresh -n analysis -e conda`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringSliceVarP(&refreshEcosystems, "ecosystem", "e", nil, "only refresh these ecosystems (conda, pip, r)")

	RootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}
	ecosystems, err := parseEcosystems(refreshEcosystems)
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

	err = s.withSpinner(cmd, "reading installed packages", func() error {
		return env.UpdateDependencies(ctx, ecosystems...)
	})
	if err != nil {
		return err
	}
	if err := env.Export(ctx); err != nil {
		return err
	}

	if len(ecosystems) == 0 {
		ecosystems = env.Ecosystems()
	}
	deps := env.Dependencies()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Refreshed %s\n", name)
	for _, eco := range ecosystems {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %d package(s)\n", eco, len(deps[eco]))
	}
	return nil
}

