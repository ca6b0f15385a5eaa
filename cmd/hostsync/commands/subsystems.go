package commands

import (
	"github.com/spf13/cobra"
)

func newSubsystemsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "subsystems",
		Aliases: []string{"list"},
		Short:   "List the subsystems and what they support",
		Long: `List every built-in subsystem with its id and whether it supports
apply and capture. Ids are accepted with or without hyphens by --only and
--exclude.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				reg, err := a.registry("")
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, reg.Entries())
				}
				printSubsystems(a.out, reg.Entries())
				return nil
			})
		},
	}
}
