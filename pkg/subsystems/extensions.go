package subsystems

import (
	"context"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// extensionComponent manages GNOME Shell extensions of the session user.
type extensionComponent struct {
	layered[manifest.Extension, manifest.Extensions]
	deps Deps
}

func newExtensionComponent(deps Deps) *extensionComponent {
	return &extensionComponent{
		layered: layered[manifest.Extension, manifest.Extensions]{
			store: deps.Store,
			kind:  manifest.KindExtensions,
			items: func(d manifest.Extensions) []manifest.Extension { return d.Extensions },
			build: func(exts []manifest.Extension) manifest.Extensions { return manifest.Extensions{Extensions: exts} },
		},
		deps: deps,
	}
}

func (c *extensionComponent) Name() string { return "GNOME Extensions" }

// ScanSystem lists installed extensions with their enabled state.
func (c *extensionComponent) ScanSystem(ctx context.Context) ([]manifest.Extension, error) {
	all, err := executor.RunChecked(ctx, c.deps.Runner, executor.NewCommand("gnome-extensions", "list"))
	if err != nil {
		return nil, err
	}
	enabled, err := executor.RunChecked(ctx, c.deps.Runner, executor.NewCommand("gnome-extensions", "list", "--enabled"))
	if err != nil {
		return nil, err
	}

	on := make(map[string]bool)
	for _, uuid := range enabled.Lines() {
		on[uuid] = true
	}

	var exts []manifest.Extension
	for _, uuid := range all.Lines() {
		state := on[uuid]
		exts = append(exts, manifest.Extension{UUID: uuid, Enabled: &state})
	}
	return exts, nil
}

func (c *extensionComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Extensions], error) {
	return c.load()
}

func (c *extensionComponent) ManifestItems(m manifest.Layered[manifest.Extensions]) []manifest.Extension {
	return m.Merged.Extensions
}

// Diff treats an installed extension whose enabled state differs as an
// update. Only enabled extensions count as untracked.
func (c *extensionComponent) Diff(system, desired []manifest.Extension) engine.DriftReport[manifest.Extension] {
	installed := make(map[string]manifest.Extension, len(system))
	for _, ext := range system {
		installed[ext.UUID] = ext
	}

	var report engine.DriftReport[manifest.Extension]
	declared := make(map[string]bool, len(desired))
	for _, want := range desired {
		if declared[want.UUID] {
			continue
		}
		declared[want.UUID] = true

		have, ok := installed[want.UUID]
		switch {
		case !ok:
			report.ToInstall = append(report.ToInstall, want)
		case have.IsEnabled() != want.IsEnabled():
			report.ToUpdate = append(report.ToUpdate, engine.UpdatePair[manifest.Extension]{Current: have, Desired: want})
		default:
			report.SyncedCount++
		}
	}

	for _, ext := range system {
		if !declared[ext.UUID] && ext.IsEnabled() {
			report.Untracked = append(report.Untracked, ext)
		}
	}
	return report
}

// Capture records enabled extensions and the state of declared ones.
func (c *extensionComponent) Capture(system []manifest.Extension, filter engine.CaptureFilter[manifest.Extension]) (manifest.Layered[manifest.Extensions], error) {
	m, err := c.load()
	if err != nil {
		return m, err
	}
	declared := make(map[string]bool)
	for _, ext := range m.Merged.Extensions {
		declared[ext.UUID] = true
	}

	var live []manifest.Extension
	for _, ext := range system {
		if !ext.IsEnabled() && !declared[ext.UUID] {
			continue
		}
		if ext.IsEnabled() {
			ext.Enabled = nil
		}
		live = append(live, ext)
	}
	return c.capture(live, filter, func(declared, live manifest.Extension) bool {
		return declared.IsEnabled() == live.IsEnabled()
	})
}

// Reconcile installs missing extensions from extensions.gnome.org and toggles
// the enabled state of installed ones.
func (c *extensionComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[manifest.Extension]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	var warnings []engine.Warning

	for _, ext := range report.ToInstall {
		cmds := []executor.Command{installExtension(ext.UUID)}
		if !ext.IsEnabled() {
			cmds = append(cmds, executor.NewCommand("gnome-extensions", "disable", ext.UUID))
		}
		actions = append(actions, commandAction(c.deps.Runner, engine.VerbInstall, ext.UUID, cmds...))
	}

	for _, pair := range report.ToUpdate {
		verb, action := engine.VerbEnable, "enable"
		if !pair.Desired.IsEnabled() {
			verb, action = engine.VerbDisable, "disable"
		}
		cmd := executor.NewCommand("gnome-extensions", action, pair.Desired.UUID)
		actions = append(actions, commandAction(c.deps.Runner, verb, pair.Desired.UUID, cmd))
	}

	if len(report.Untracked) > 0 {
		if pctx.Options.Prune {
			for _, ext := range report.Untracked {
				cmd := executor.NewCommand("gnome-extensions", "disable", ext.UUID)
				actions = append(actions, commandAction(c.deps.Runner, engine.VerbDisable, ext.UUID, cmd))
			}
		} else {
			warnings = append(warnings, untrackedWarning(len(report.Untracked), "enabled extensions are"))
		}
	}

	if c.deps.host() && len(actions) > 0 {
		warnings = append(warnings, engine.Warning{Message: "extensions are managed for the session user even in host mode"})
	}
	return actions, warnings
}

// installExtension asks the running shell to download and install uuid.
func installExtension(uuid string) executor.Command {
	return executor.NewCommand("gdbus", "call", "--session",
		"--dest", "org.gnome.Shell.Extensions",
		"--object-path", "/org/gnome/Shell/Extensions",
		"--method", "org.gnome.Shell.Extensions.InstallRemoteExtension",
		uuid)
}

func extensionEnv(ext manifest.Extension) map[string]interface{} {
	return map[string]interface{}{
		"key":       ext.UUID,
		"uuid":      ext.UUID,
		"enabled":   ext.IsEnabled(),
		"subsystem": "extension",
	}
}
