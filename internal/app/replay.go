package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/export"
	"github.com/blackwell-systems/envtrack/internal/output"
)

var (
	replayFrom   string
	replaySource string
)

var replayCmd = &cobra.Command{
	Use:   "replay <new-name>",
	Short: "Rebuild an environment from its history",
	Long: `Create a new environment by running every recorded create, install and
remove of another environment again, in order.

Installs use the versions recorded when they first ran, so the rebuilt
environment ends up with the same packages. When the source is a tracked
environment (--source) the rebuilt dependency snapshot is compared with the
source's and any difference is reported.

Examples:
  # Rebuild from a tracked environment
  envtrack replay analysis-copy --source analysis

  # Rebuild from exported files, e.g. on another machine
  envtrack replay analysis --from ./exports/analysis`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "history.yaml file or export directory to replay")
	replayCmd.Flags().StringVar(&replaySource, "source", "", "tracked environment to replay")

	RootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	target := args[0]
	if (replayFrom == "") == (replaySource == "") {
		return fmt.Errorf("exactly one of --from or --source is required")
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	exists, err := s.tracked(ctx, target)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("environment %q is already tracked", target)
	}

	var source *environment.Environment
	var history *environment.History
	if replaySource != "" {
		if source, err = s.load(ctx, replaySource); err != nil {
			return err
		}
		history = source.History()
	} else {
		loaded, err := export.LoadHistory(replayFrom)
		if err != nil {
			return err
		}
		history = loaded.History
	}
	if history.Len() == 0 {
		return fmt.Errorf("nothing to replay: the history is empty")
	}

	bar := output.NewProgress(history.Len(), "replaying into "+target)
	bar.SetWriter(cmd.OutOrStdout())
	replayed, err := environment.Replay(ctx, history, target, func(i int, e environment.Entry) {
		bar.Step(e.Log)
	}, s.options()...)
	bar.Finish()
	if err != nil {
		return reportError(cmd, "replay", err)
	}

	if source != nil {
		if err := environment.VerifyReplay(source, replayed); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Replayed %d history entries into %s\n", history.Len(), target)
	return nil
}
