package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked environments",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	envs, err := s.store.ListEnvironments(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderEnvironmentTable(envs))
	return nil
}
