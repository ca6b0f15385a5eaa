package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/policy"
)

// watchDebounce collapses bursts of editor writes into one refresh.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		only    []string
		exclude []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check drift whenever a manifest changes",
		Long: `Print the status table, then again after every change to a manifest
file of either layer. Policy files are reloaded when they change. With
metrics.listenAddress set, /metrics is served until interrupted.

watch never plans or executes anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return a.watch(cmd.Context(), engine.ParseIDList(only...), engine.ParseIDList(exclude...))
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated subsystem ids to inspect")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "comma-separated subsystem ids to skip")

	return cmd
}

func (a *app) watch(ctx context.Context, only, exclude []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return engine.NewPlanningError("failed to create watcher", err).WithCode(engine.ErrCodeInternal)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range []string{a.cfg.SystemManifestDir, a.cfg.ManifestDir} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			a.logger.WithField("dir", dir).WithError(err).Warn("Not watching manifest directory")
			continue
		}
		watched++
	}
	if watched == 0 {
		return engine.NewValidationError("no manifest directory can be watched", nil).WithCode(engine.ErrCodeManifestLoad)
	}

	loader := policy.NewLoader(a.logger.Zerolog())
	if err := loader.Watch(ctx, a.cfg.PolicyDirs, a.reloadPolicies(ctx)); err != nil {
		a.logger.WithError(err).Warn("Not watching policies")
	}
	defer loader.StopWatching()

	metricsErr := make(chan error, 1)
	go func() { metricsErr <- a.tel.Metrics.Serve(ctx) }()

	refresh := func() {
		statuses, err := a.collectStatus(ctx, only, exclude)
		if err != nil {
			a.logger.WithError(err).Error("Status refresh failed")
			return
		}
		if jsonOutput {
			_ = printJSON(a.out, statuses)
			return
		}
		fmt.Fprintln(a.out, styleDim.Render(time.Now().Format(time.TimeOnly)))
		printStatusTable(a.out, statuses)
	}
	refresh()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-metricsErr:
			if err != nil {
				return engine.NewPlanningError("metrics server failed", err).WithCode(engine.ErrCodeInternal)
			}
			metricsErr = nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isManifestFile(event.Name) {
				continue
			}
			a.logger.WithField("file", event.Name).Debug("Manifest changed")
			timer.Reset(watchDebounce)

		case <-timer.C:
			refresh()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.WithError(err).Warn("Watcher error")
		}
	}
}

// reloadPolicies swaps in reloaded policies and reapplies disabledPolicies.
func (a *app) reloadPolicies(ctx context.Context) func([]policy.Policy) error {
	return func(policies []policy.Policy) error {
		if err := a.policies.ReloadPolicies(ctx, policies); err != nil {
			return err
		}
		for _, name := range a.cfg.DisabledPolicies {
			if err := a.policies.DisablePolicy(name); err != nil {
				a.logger.WithError(err).Warn("Disabled policy no longer exists")
			}
		}
		return nil
	}
}

func isManifestFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
