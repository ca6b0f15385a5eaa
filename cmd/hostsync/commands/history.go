package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded apply and capture runs",
		Long: `Without arguments, list the most recent runs. With a run id, or a unique
prefix of one, show the run with every operation and event it recorded.`,
		Example: `  hostsync history
  hostsync history 3f2a9c1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.requireHistory(cmd.Context()); err != nil {
					return err
				}

				if len(args) == 1 {
					entry, err := a.history.Get(cmd.Context(), args[0])
					if err != nil {
						return engine.NewValidationError("failed to load run", err).WithCode(engine.ErrCodeValidation)
					}
					if jsonOutput {
						return printJSON(a.out, entry)
					}
					printEntry(a.out, entry)
					return nil
				}

				runs, err := a.history.Recent(cmd.Context(), limit)
				if err != nil {
					return engine.NewPlanningError("failed to list runs", err).WithCode(engine.ErrCodeInternal)
				}
				if jsonOutput {
					return printJSON(a.out, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(a.out, styleDim.Render("No runs recorded."))
					return nil
				}
				printRuns(a.out, runs)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.requireHistory(cmd.Context()); err != nil {
					return err
				}
				if keep < 0 {
					return engine.NewValidationError("--keep must not be negative", nil).WithCode(engine.ErrCodeValidation)
				}
				if dryRun {
					fmt.Fprintf(a.out, "Dry run: would keep the %d most recent run(s).\n", keep)
					return nil
				}
				pruned, err := a.history.Retain(cmd.Context(), keep)
				if err != nil {
					return engine.NewPlanningError("failed to prune runs", err).WithCode(engine.ErrCodeInternal)
				}
				fmt.Fprintf(a.out, "Deleted %d run(s).\n", pruned)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "number of runs to keep")
	return cmd
}

// requireHistory opens the history and fails when it is disabled.
func (a *app) requireHistory(ctx context.Context) error {
	if a.cfg.HistoryPath == "" {
		return engine.NewValidationError("run history is disabled (historyPath is empty)", nil).WithCode(engine.ErrCodeValidation)
	}
	return a.openHistory(ctx)
}
