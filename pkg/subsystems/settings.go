package subsystems

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// settingComponent manages gsettings keys. Only declared keys are read, so
// settings never report untracked items.
type settingComponent struct {
	layered[manifest.Setting, manifest.Settings]
	deps Deps
}

func newSettingComponent(deps Deps) *settingComponent {
	return &settingComponent{
		layered: layered[manifest.Setting, manifest.Settings]{
			store: deps.Store,
			kind:  manifest.KindSettings,
			items: func(d manifest.Settings) []manifest.Setting { return d.Settings },
			build: func(s []manifest.Setting) manifest.Settings { return manifest.Settings{Settings: s} },
		},
		deps: deps,
	}
}

func (c *settingComponent) Name() string { return "Settings" }

// ScanSystem reads the current value of every declared key. Keys whose
// schema is not installed are left out.
func (c *settingComponent) ScanSystem(ctx context.Context) ([]manifest.Setting, error) {
	m, err := c.load()
	if err != nil {
		return nil, err
	}

	var current []manifest.Setting
	seen := make(map[string]bool)
	for _, s := range m.Merged.Settings {
		if seen[s.DiffKey()] {
			continue
		}
		seen[s.DiffKey()] = true

		out, err := executor.Output(ctx, c.deps.Runner, executor.NewCommand("gsettings", "get", s.Schema, s.Key))
		if executor.IsExitError(err, -1) {
			log.Debug().Err(err).Str("key", s.DiffKey()).Msg("Setting not readable")
			continue
		}
		if err != nil {
			return nil, err
		}
		current = append(current, manifest.Setting{Schema: s.Schema, Key: s.Key, Value: strings.TrimSpace(out)})
	}
	return current, nil
}

func (c *settingComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Settings], error) {
	return c.load()
}

func (c *settingComponent) ManifestItems(m manifest.Layered[manifest.Settings]) []manifest.Setting {
	return m.Merged.Settings
}

func (c *settingComponent) Capture(system []manifest.Setting, filter engine.CaptureFilter[manifest.Setting]) (manifest.Layered[manifest.Settings], error) {
	return c.capture(system, filter, nil)
}

// Reconcile writes every key that is missing or holds another value.
func (c *settingComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[manifest.Setting]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	for _, s := range report.ToInstall {
		actions = append(actions, c.set(s))
	}
	for _, pair := range report.ToUpdate {
		actions = append(actions, c.set(pair.Desired))
	}
	return actions, nil
}

func (c *settingComponent) set(s manifest.Setting) engine.Action {
	cmd := executor.NewCommand("gsettings", "set", s.Schema, s.Key, s.Value)
	return commandAction(c.deps.Runner, engine.VerbSet, s.DiffKey()+" = "+s.Value, cmd)
}

func settingEnv(s manifest.Setting) map[string]interface{} {
	return map[string]interface{}{
		"key":       s.DiffKey(),
		"schema":    s.Schema,
		"name":      s.Key,
		"value":     s.Value,
		"subsystem": "setting",
	}
}
