package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest files",
		Long: `Validate every manifest file of both layers.

This command:
  - Decodes each file strictly (unknown fields are errors)
  - Checks struct constraints and duplicate keys
  - Checks the built-in CUE schema of each manifest kind
  - Lists the loaded policies

It exits with status 2 when any file is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				files := a.store.Files()
				issues := a.store.ValidateAll()

				if jsonOutput {
					if err := printJSON(a.out, struct {
						Files  []string         `json:"files"`
						Issues []manifest.Issue `json:"issues"`
					}{files, issues}); err != nil {
						return err
					}
				} else {
					for _, f := range files {
						fmt.Fprintf(a.out, "%s %s\n", styleDim.Render("checked"), f)
					}
					for _, p := range a.policies.ListPolicies() {
						state := "enabled"
						if !p.Enabled {
							state = "disabled"
						}
						fmt.Fprintf(a.out, "%s %s (%s)\n", styleDim.Render("policy"), p.Name, state)
					}
					for _, issue := range issues {
						fmt.Fprintf(a.out, "%s %s\n", styleFailed.Render("invalid"), issue)
					}
				}

				if len(issues) > 0 {
					return engine.NewValidationError(fmt.Sprintf("%d manifest issue(s) found", len(issues)), nil).
						WithCode(engine.ErrCodeManifestInvalid)
				}
				if !jsonOutput {
					fmt.Fprintln(a.out, styleOK.Render(fmt.Sprintf("%d manifest file(s) valid", len(files))))
				}
				return nil
			})
		},
	}
	return cmd
}
