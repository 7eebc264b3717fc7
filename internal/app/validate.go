package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check requested packages are still in the snapshot",
	Long: `Check that every package explicitly requested in the history is present in
the recorded dependency snapshot at the requested version.

Run 'envtrack refresh' first to validate against what is installed now.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	RootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	name, err := requireName()
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
	if err := env.ValidateDeclared(); err != nil {
		return reportError(cmd, "validate", err)
	}

	history := env.History()
	count := 0
	for _, eco := range pkgs.Ecosystems {
		count += len(history.Declared(eco))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ All %d requested package(s) of %s are present\n", count, name)
	return nil
}
