package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		only    []string
		exclude []string
		prune   bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the manifests to the system",
		Long: `Bring the live system in line with the manifests.

This command:
  - Plans every selected subsystem against the merged manifests
  - Evaluates the plan policies (a deny aborts before anything runs)
  - Prints the preview and stops there with --dry-run
  - Executes every operation once, continuing past failures
  - Lists the failed operations and records the run in the history`,
		Example: `  # Preview everything
  hostsync apply --dry-run

  # Only Flatpak applications and GNOME extensions
  hostsync apply --only flatpak,extension

  # Everything but packages, removing untracked items
  hostsync apply --exclude package --prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return a.planAndExecute(cmd.Context(), runRequest{
					direction:  "apply",
					capability: engine.CapabilitySync,
					only:       engine.ParseIDList(only...),
					exclude:    engine.ParseIDList(exclude...),
					prune:      prune,
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated subsystem ids to apply")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "comma-separated subsystem ids to skip (wins over --only)")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove untracked items")

	return cmd
}
