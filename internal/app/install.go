package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var installEcosystem string

var installCmd = &cobra.Command{
	Use:   "install <packages...>",
	Short: "Install packages and record them in the history",
	Long: `Install packages into a tracked environment with conda, pip or R.

After the package manager finishes, the installed packages are re-read and
every requested package must be present at the requested version. Only then
is the install appended to the history and exported. If anything fails the
recorded dependencies and history are left untouched.

Package syntax per ecosystem:
  conda  name | name=1.0 | channel::name=1.0
  pip    name | name==1.0
  r      name | name=1.0

Examples:
  # Install conda packages
  envtrack install -n analysis numpy pandas=2.1.4

  # Install pip packages
  envtrack install -n analysis -e pip requests==2.31.0

  # Install a pinned R package
  envtrack install -n analysis -e r dplyr=1.1.4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installEcosystem, "ecosystem", "e", "conda", "package ecosystem: conda, pip, r")

	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}
	eco, err := pkgs.ParseEcosystem(installEcosystem)
	if err != nil {
		return err
	}
	packages, err := pkgs.ParseAll(eco, args)
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

	before := env.History().Len()
	err = s.withSpinner(cmd, fmt.Sprintf("%s install %s", eco, packages.Names()), func() error {
		return env.Install(ctx, eco, packages)
	})
	if err != nil {
		return reportError(cmd, "install", err)
	}

	history := env.History()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Installed %d %s package(s) into %s\n", len(packages), eco, name)
	if history.Len() > before {
		last := history.Entries[history.Len()-1]
		for _, p := range last.Packages {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
		}
	}
	return nil
}
