package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	dryRun      bool
	manifestDir string
	contextMode string
)

// Exit codes returned by ExitCode.
const (
	ExitOK         = 0
	ExitPlanning   = 1
	ExitValidation = 2
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps a command error to the process exit status. Operation
// failures inside an executed batch never reach here.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case engine.IsValidation(err):
		return ExitValidation
	default:
		return ExitPlanning
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "hostsync",
		Short: "Keep an immutable host in sync with its manifests",
		Long: `hostsync reconciles declarative manifests with the live system of an
immutable-OS host, in both directions.

  apply     manifest -> system: install, enable and set what the manifests declare
  capture   system -> manifest: record what is installed into the user manifests

Every command plans first and prints a preview. With --dry-run nothing is
executed. Individual operation failures do not stop the batch; they are
listed in the final report.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return engine.NewValidationError("invalid arguments", err).WithCode(engine.ErrCodeValidation)
	})

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ~/.config/hostsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "print the plan without executing it")
	rootCmd.PersistentFlags().StringVar(&manifestDir, "manifest-dir", "", "writable manifest directory")
	rootCmd.PersistentFlags().StringVar(&contextMode, "mode", "", "context mode: user or host")

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newCaptureCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newSubsystemsCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
