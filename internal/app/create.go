package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var createCmd = &cobra.Command{
	Use:   "create <packages...>",
	Short: "Create a conda environment and start tracking it",
	Long: `Create a new conda environment with the given conda packages.

The creation is the first entry of the environment's history. Channels from
ENVTRACK_CHANNELS and $ENVTRACK_HOME/channels are searched in order and
recorded with the environment.

Package syntax: name, name=version or channel::name=version.

Examples:
  # Create an environment with Python and R
  envtrack create --name analysis python=3.11 r-base

  # Pull a package from a specific channel
  envtrack create --name genomics bioconda::samtools=1.19`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() {
	RootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}
	packages, err := pkgs.ParseAll(pkgs.Conda, args)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	exists, err := s.tracked(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("environment %q is already tracked", name)
	}

	env := s.newEnvironment(name)
	err = s.withSpinner(cmd, fmt.Sprintf("conda create %s", name), func() error {
		return env.Create(ctx, packages)
	})
	if err != nil {
		return reportError(cmd, "create", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s with %d package(s)\n", name, len(packages))
	fmt.Fprintf(cmd.OutOrStdout(), "  Exported to %s\n", s.files.Path(name))
	return nil
}
