package subsystems

import (
	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// Builtin creates a registry holding every built-in subsystem. Callers build
// a fresh registry per command.
func Builtin(deps Deps) (*engine.Registry, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, engine.NewValidationError("invalid subsystem configuration", err)
	}

	pkgs, err := newPackageComponent(deps)
	if err != nil {
		return nil, err
	}
	pkgFilter, err := whereFilter(deps.CaptureWhere, packageEnv)
	if err != nil {
		return nil, err
	}

	flatpak := newFlatpakComponent(deps)
	flatpakFilter, err := whereFilter(deps.CaptureWhere, flatpakEnv)
	if err != nil {
		return nil, err
	}

	exts := newExtensionComponent(deps)
	extFilter, err := whereFilter(deps.CaptureWhere, extensionEnv)
	if err != nil {
		return nil, err
	}

	units := newServiceComponent(deps)
	unitFilter, err := whereFilter(deps.CaptureWhere, unitEnv)
	if err != nil {
		return nil, err
	}

	settings := newSettingComponent(deps)
	settingFilter, err := whereFilter(deps.CaptureWhere, settingEnv)
	if err != nil {
		return nil, err
	}

	shims := newShimComponent(deps)

	subs := []struct {
		description string
		sub         engine.Subsystem
	}{
		{
			"Layered rpm-ostree packages",
			engine.NewAdapter[string, Package, manifest.Layered[manifest.Packages]]("package", pkgs, pkgs).
				WithCaptureFilter(pkgFilter),
		},
		{
			"Flatpak applications",
			engine.NewAdapter[string, manifest.FlatpakApp, manifest.Layered[manifest.Flatpak]]("flatpak", flatpak, flatpak).
				WithCaptureFilter(flatpakFilter),
		},
		{
			"GNOME Shell extensions",
			engine.NewAdapter[string, manifest.Extension, manifest.Layered[manifest.Extensions]]("extension", exts, exts).
				WithCaptureFilter(extFilter),
		},
		{
			"systemd unit enablement",
			engine.NewAdapter[string, manifest.Unit, manifest.Layered[manifest.Services]]("service", units, units).
				WithCaptureFilter(unitFilter),
		},
		{
			"gsettings keys",
			engine.NewAdapter[string, manifest.Setting, manifest.Layered[manifest.Settings]]("setting", settings, settings).
				WithCaptureFilter(settingFilter),
		},
		{
			"Generated command shims",
			engine.NewAdapter[string, manifest.Shim, manifest.Layered[manifest.Shims]]("shim", shims, shims),
		},
	}

	reg := engine.NewRegistry()
	for _, s := range subs {
		if err := reg.Register(s.description, s.sub); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
