package subsystems

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// serviceComponent manages the enablement of systemd units. Host mode talks
// to the system manager through sudo, user mode to the user manager.
type serviceComponent struct {
	layered[manifest.Unit, manifest.Services]
	deps Deps
}

func newServiceComponent(deps Deps) *serviceComponent {
	return &serviceComponent{
		layered: layered[manifest.Unit, manifest.Services]{
			store: deps.Store,
			kind:  manifest.KindServices,
			items: func(d manifest.Services) []manifest.Unit { return d.Units },
			build: func(units []manifest.Unit) manifest.Services { return manifest.Services{Units: units} },
		},
		deps: deps,
	}
}

func (c *serviceComponent) Name() string { return "Services" }

func (c *serviceComponent) systemctl(args ...string) executor.Command {
	if !c.deps.host() {
		args = append([]string{"--user"}, args...)
	}
	return executor.NewCommand("systemctl", args...).WithSudo(c.deps.host())
}

// ScanSystem lists unit files whose state is enabled, disabled or masked.
func (c *serviceComponent) ScanSystem(ctx context.Context) ([]manifest.Unit, error) {
	cmd := c.systemctl("list-unit-files", "--no-legend", "--no-pager").WithSudo(false)
	res, err := executor.RunChecked(ctx, c.deps.Runner, cmd)
	if err != nil {
		return nil, err
	}

	var units []manifest.Unit
	for _, line := range res.Lines() {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		state := manifest.UnitState(fields[1])
		switch state {
		case manifest.UnitEnabled, manifest.UnitDisabled, manifest.UnitMasked:
		default:
			continue
		}
		unit := manifest.Unit{Name: fields[0], State: state}
		if len(fields) > 2 {
			unit.Preset = manifest.UnitState(fields[2])
		}
		units = append(units, unit)
	}
	return units, nil
}

func (c *serviceComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Services], error) {
	return c.load()
}

func (c *serviceComponent) ManifestItems(m manifest.Layered[manifest.Services]) []manifest.Unit {
	return m.Merged.Units
}

// Diff compares states. Undeclared units count as untracked only when they
// deviate from their vendor preset.
func (c *serviceComponent) Diff(system, desired []manifest.Unit) engine.DriftReport[manifest.Unit] {
	report := engine.ComputeDrift[string](system, desired)
	untracked := report.Untracked[:0]
	for _, u := range report.Untracked {
		if u.Customized() {
			untracked = append(untracked, u)
		}
	}
	report.Untracked = untracked
	return report
}

// Capture records customized units and the state of declared ones.
func (c *serviceComponent) Capture(system []manifest.Unit, filter engine.CaptureFilter[manifest.Unit]) (manifest.Layered[manifest.Services], error) {
	m, err := c.load()
	if err != nil {
		return m, err
	}
	declared := make(map[string]bool)
	for _, u := range m.Merged.Units {
		declared[u.Name] = true
	}

	var live []manifest.Unit
	for _, u := range system {
		if u.Customized() || declared[u.Name] {
			u.Preset = ""
			live = append(live, u)
		}
	}
	return c.capture(live, filter, nil)
}

// Reconcile moves units to their declared state. With prune, untracked units
// are reset to their vendor preset.
func (c *serviceComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[manifest.Unit]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	var warnings []engine.Warning

	for _, want := range report.ToInstall {
		actions = append(actions, c.transition(manifest.UnitState(""), want))
	}
	for _, pair := range report.ToUpdate {
		actions = append(actions, c.transition(pair.Current.State, pair.Desired))
	}

	if len(report.Untracked) > 0 {
		if pctx.Options.Prune {
			for _, u := range report.Untracked {
				var cmds []executor.Command
				if u.State == manifest.UnitMasked {
					cmds = append(cmds, c.systemctl("unmask", u.Name))
				}
				cmds = append(cmds, c.systemctl("preset", u.Name))
				actions = append(actions, commandAction(c.deps.Runner, engine.VerbReset, u.Name, cmds...))
			}
		} else {
			warnings = append(warnings, untrackedWarning(len(report.Untracked), "customized units are"))
		}
	}
	return actions, warnings
}

func (c *serviceComponent) transition(current manifest.UnitState, want manifest.Unit) engine.Action {
	var cmds []executor.Command
	if current == manifest.UnitMasked && want.State != manifest.UnitMasked {
		cmds = append(cmds, c.systemctl("unmask", want.Name))
	}

	var verb engine.OperationVerb
	switch want.State {
	case manifest.UnitEnabled:
		verb = engine.VerbEnable
	case manifest.UnitDisabled:
		verb = engine.VerbDisable
	case manifest.UnitMasked:
		verb = engine.VerbMask
	}
	cmds = append(cmds, c.systemctl(string(verb), want.Name))

	target := want.Name
	if current != "" {
		target = fmt.Sprintf("%s (%s -> %s)", want.Name, current, want.State)
	}
	return commandAction(c.deps.Runner, verb, target, cmds...)
}

func unitEnv(u manifest.Unit) map[string]interface{} {
	return map[string]interface{}{
		"key":       u.Name,
		"name":      u.Name,
		"state":     string(u.State),
		"preset":    string(u.Preset),
		"subsystem": "service",
	}
}
