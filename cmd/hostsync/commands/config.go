package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
HOSTSYNC_* environment variables and command-line flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if jsonOutput {
					return printJSON(a.out, a.cfg)
				}
				if used := a.loader.ConfigFileUsed(); used != "" {
					fmt.Fprintln(a.out, styleDim.Render("# "+used))
				}
				data, err := a.loader.Dump()
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			})
		},
	}
}
