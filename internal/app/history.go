package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/output"
)

var historyFlagActions bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recorded history of an environment",
	Long: `Show every create, install and remove recorded for an environment, oldest
first.

With --actions only the shell commands are printed, one per line, in the
order they ran. Running them in a fresh environment reproduces it.

Examples:
  envtrack history -n analysis
  envtrack history -n analysis --actions > rebuild.sh`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyFlagActions, "actions", false, "print only the recorded shell commands")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
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
	history := env.History()

	if historyFlagActions {
		for _, action := range history.Actions() {
			fmt.Fprintln(cmd.OutOrStdout(), action)
		}
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderHistoryTable(history.Entries))
	return nil
}
