package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
)

func newCaptureCommand() *cobra.Command {
	var (
		only    []string
		exclude []string
		where   string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record the live system into the user manifests",
		Long: `Record what is installed on the system into the user manifest layer.

Items declared by the system layer are not duplicated. Entries of the user
layer for items that are no longer present are kept. --where restricts the
captured items with an expression over the item fields.`,
		Example: `  # Preview what capture would write
  hostsync capture --dry-run

  # Capture only Flatpak applications from flathub
  hostsync capture --only flatpak --where 'remote == "flathub"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return a.planAndExecute(cmd.Context(), runRequest{
					direction:  "capture",
					capability: engine.CapabilityCapture,
					only:       engine.ParseIDList(only...),
					exclude:    engine.ParseIDList(exclude...),
					where:      where,
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated subsystem ids to capture")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "comma-separated subsystem ids to skip (wins over --only)")
	cmd.Flags().StringVar(&where, "where", "", "expression selecting the items to capture")

	return cmd
}
