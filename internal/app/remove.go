package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var (
	removeEcosystem  string
	removeFlagDryRun bool
	removeFlagYes    bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <packages...>",
	Short: "Remove packages and record the removal in the history",
	Long: `Remove packages from a tracked environment with conda, pip or R.

Every named package must be in the recorded dependencies; if any is missing
nothing is removed and the missing names are listed. After the package manager
finishes, none of the packages may still be installed.

Packages other packages depend on may be removed along with them, or may keep
others installed; the recorded dependencies always reflect what the package
manager reports afterwards.

Examples:
  # Preview the removal
  envtrack remove -n analysis -e r tidyr --dry-run

  # Remove without confirmation
  envtrack remove -n analysis -e pip requests --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVarP(&removeEcosystem, "ecosystem", "e", "conda", "package ecosystem: conda, pip, r")
	removeCmd.Flags().BoolVar(&removeFlagDryRun, "dry-run", false, "Show what would be removed without removing")
	removeCmd.Flags().BoolVar(&removeFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	name, err := requireName()
	if err != nil {
		return err
	}
	eco, err := pkgs.ParseEcosystem(removeEcosystem)
	if err != nil {
		return err
	}
	packages, err := pkgs.ParseAll(eco, args)
	if err != nil {
		return err
	}
	if eco == pkgs.Pip {
		packages = pkgs.NormalizePip(packages)
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

	deps := env.Dependencies()
	var missing []string
	for _, p := range packages {
		if !deps.Has(eco, p.Name) {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return reportError(cmd, "remove", &environment.DependencyError{Env: name, Ecosystem: eco, Missing: missing})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Packages to remove from %s (%s):\n", name, eco)
	for _, p := range packages {
		d, _ := deps.Get(eco, p.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "  %-30s %s\n", d.Name, d.Version)
	}

	if removeFlagDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "\nDry run: nothing was removed.")
		return nil
	}
	if !removeFlagYes && !confirm(cmd, "\nProceed with removal?") {
		fmt.Fprintln(cmd.OutOrStdout(), "Removal cancelled.")
		return nil
	}

	err = s.withSpinner(cmd, fmt.Sprintf("%s remove %s", eco, packages.Names()), func() error {
		return env.Remove(ctx, eco, packages)
	})
	if err != nil {
		return reportError(cmd, "remove", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d %s package(s) from %s\n", len(packages), eco, name)
	return nil
}
