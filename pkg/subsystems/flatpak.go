package subsystems

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// flatpakComponent manages Flatpak applications in the installation selected
// by the context mode.
type flatpakComponent struct {
	layered[manifest.FlatpakApp, manifest.Flatpak]
	deps Deps
}

func newFlatpakComponent(deps Deps) *flatpakComponent {
	return &flatpakComponent{
		layered: layered[manifest.FlatpakApp, manifest.Flatpak]{
			store: deps.Store,
			kind:  manifest.KindFlatpak,
			items: func(d manifest.Flatpak) []manifest.FlatpakApp { return d.Apps },
			build: func(apps []manifest.FlatpakApp) manifest.Flatpak { return manifest.Flatpak{Apps: apps} },
		},
		deps: deps,
	}
}

func (c *flatpakComponent) Name() string { return "Flatpak" }

func (c *flatpakComponent) installation() string {
	if c.deps.host() {
		return "--system"
	}
	return "--user"
}

func (c *flatpakComponent) command(verb string, args ...string) executor.Command {
	args = append([]string{verb, c.installation(), "--noninteractive"}, args...)
	return executor.NewCommand("flatpak", args...).WithSudo(c.deps.host())
}

// ScanSystem lists installed applications and their origin remote.
func (c *flatpakComponent) ScanSystem(ctx context.Context) ([]manifest.FlatpakApp, error) {
	cmd := executor.NewCommand("flatpak", "list", c.installation(), "--app", "--columns=application,origin")
	res, err := executor.RunChecked(ctx, c.deps.Runner, cmd)
	if err != nil {
		return nil, err
	}

	var apps []manifest.FlatpakApp
	for _, line := range res.Lines() {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		app := manifest.FlatpakApp{ID: fields[0]}
		if len(fields) > 1 {
			app.Remote = fields[1]
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func (c *flatpakComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Flatpak], error) {
	return c.load()
}

func (c *flatpakComponent) ManifestItems(m manifest.Layered[manifest.Flatpak]) []manifest.FlatpakApp {
	return m.Merged.Apps
}

func (c *flatpakComponent) Capture(system []manifest.FlatpakApp, filter engine.CaptureFilter[manifest.FlatpakApp]) (manifest.Layered[manifest.Flatpak], error) {
	return c.capture(system, filter, nil)
}

// Reconcile installs missing apps, reinstalls apps from the wrong remote and,
// with prune, uninstalls untracked apps.
func (c *flatpakComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[manifest.FlatpakApp]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	var warnings []engine.Warning

	for _, app := range report.ToInstall {
		cmd := c.command("install", app.RemoteOrDefault(), app.ID)
		actions = append(actions, commandAction(c.deps.Runner, engine.VerbInstall, app.ID, cmd))
	}

	for _, pair := range report.ToUpdate {
		target := fmt.Sprintf("%s (%s -> %s)", pair.Desired.ID, pair.Current.Remote, pair.Desired.RemoteOrDefault())
		cmd := c.command("install", "--reinstall", pair.Desired.RemoteOrDefault(), pair.Desired.ID)
		actions = append(actions, commandAction(c.deps.Runner, engine.VerbUpdate, target, cmd))
	}

	if len(report.Untracked) > 0 {
		if pctx.Options.Prune {
			for _, app := range report.Untracked {
				cmd := c.command("uninstall", app.ID)
				actions = append(actions, commandAction(c.deps.Runner, engine.VerbRemove, app.ID, cmd))
			}
		} else {
			warnings = append(warnings, untrackedWarning(len(report.Untracked), "flatpak apps are"))
		}
	}
	return actions, warnings
}

func flatpakEnv(app manifest.FlatpakApp) map[string]interface{} {
	return map[string]interface{}{
		"key":       app.ID,
		"id":        app.ID,
		"remote":    app.Remote,
		"subsystem": "flatpak",
	}
}
