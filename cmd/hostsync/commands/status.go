package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/telemetry"
)

func newStatusCommand() *cobra.Command {
	var (
		only    []string
		exclude []string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how far the system is from the manifests",
		Long: `Scan every selected subsystem and print how many manifest items are
synced, pending or need an update, and how many live items are untracked.
Nothing is planned or executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				statuses, err := a.collectStatus(cmd.Context(), engine.ParseIDList(only...), engine.ParseIDList(exclude...))
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, statuses)
				}
				printStatusTable(a.out, statuses)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated subsystem ids to inspect")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "comma-separated subsystem ids to skip")

	return cmd
}

func newDiffCommand() *cobra.Command {
	var (
		only    []string
		exclude []string
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "List the items that differ between system and manifests",
		Long: `Print, per subsystem, the manifest items missing from the system (+),
the items whose content differs (~) and the live items no manifest
declares (?).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				entries, err := a.selectInspectable(engine.ParseIDList(only...), engine.ParseIDList(exclude...))
				if err != nil {
					return err
				}

				views := make([]engine.DriftView, 0, len(entries))
				for _, e := range entries {
					view, err := e.Subsystem.Drift(cmd.Context())
					if err != nil {
						return err
					}
					views = append(views, view)
				}

				if jsonOutput {
					return printJSON(a.out, views)
				}
				printDrift(a.out, views)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated subsystem ids to inspect")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "comma-separated subsystem ids to skip")

	return cmd
}

// selectInspectable returns the registered entries matching the filters.
// Every subsystem can be inspected whatever its capabilities.
func (a *app) selectInspectable(only, exclude []string) ([]engine.Entry, error) {
	reg, err := a.registry("")
	if err != nil {
		return nil, err
	}

	for _, id := range append(append([]string(nil), only...), exclude...) {
		if _, ok := reg.Lookup(id); !ok {
			return nil, engine.NewValidationError(fmt.Sprintf("unknown subsystem %q", id), nil).
				WithCode(engine.ErrCodeUnknownSubsystem)
		}
	}

	include := only
	if len(include) == 0 {
		for _, e := range reg.Entries() {
			include = append(include, e.ID)
		}
	}
	keep := make(map[string]bool)
	for _, id := range engine.EffectiveSelection(include, exclude) {
		keep[id] = true
	}

	var out []engine.Entry
	for _, e := range reg.Entries() {
		if keep[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// collectStatus scans the selected subsystems and publishes their drift.
func (a *app) collectStatus(ctx context.Context, only, exclude []string) ([]engine.ComponentStatus, error) {
	entries, err := a.selectInspectable(only, exclude)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tel.Tracer.StartPhaseSpan(ctx, "status")
	statuses := make([]engine.ComponentStatus, 0, len(entries))
	for _, e := range entries {
		status, err := e.Subsystem.Status(ctx)
		if err != nil {
			telemetry.EndSpan(span, err)
			return nil, err
		}
		a.tel.Metrics.SetDrift(e.ID, status)
		if !status.InSync() {
			_ = a.tel.Events.PublishDriftDetected(e.ID, status)
		}
		statuses = append(statuses, status)
	}
	telemetry.EndSpan(span, nil)
	return statuses, nil
}
