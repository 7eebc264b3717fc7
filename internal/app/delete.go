package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteFlagYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Stop tracking an environment",
	Long: `Delete an environment's history and dependency snapshot from the database.

The conda environment itself and its export files are left alone, so the
environment can be rebuilt later with 'envtrack replay --from <export dir>'.

Examples:
  envtrack delete analysis
  envtrack delete analysis --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if !deleteFlagYes && !confirm(cmd, fmt.Sprintf("Stop tracking %s?", name)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
		return nil
	}

	if err := s.store.DeleteEnvironment(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is no longer tracked\n", name)
	fmt.Fprintf(cmd.OutOrStdout(), "  Export files kept in %s\n", s.files.Path(name))
	return nil
}
