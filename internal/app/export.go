package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an environment's export files",
	Long: `Write environment.yml, install.R (when R packages were requested) and
history.yaml for an environment, and save it to the database.

Every successful install and remove exports automatically; this command
rewrites the files, for example into a different --export-dir. Files whose
content has not changed are left untouched.

Examples:
  envtrack export -n analysis
  envtrack export -n analysis --export-dir ./envs`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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
	if err := env.Export(ctx); err != nil {
		return err
	}

	dir := s.files.Path(name)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %s to %s\n", name, dir)
	for _, file := range []string{export.EnvironmentFile, export.RScriptFile, export.HistoryFile} {
		if fileExists(filepath.Join(dir, file)) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", file)
		}
	}
	return nil
}
