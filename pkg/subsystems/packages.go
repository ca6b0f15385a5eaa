package subsystems

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// Package is a layered rpm-ostree package name.
type Package string

func (p Package) DiffKey() string                   { return string(p) }
func (p Package) ContentDiffers(other Package) bool { return false }
func (p Package) Merge(other Package) Package       { return other }

// requestedPackagesQuery selects the packages requested in the default
// deployment, which is the pending one after an install.
const requestedPackagesQuery = `(.deployments[0] // {}) | ((."requested-packages" // []) + (."requested-local-packages" // [])) | .[]`

// packageComponent manages rpm-ostree package layering.
type packageComponent struct {
	layered[Package, manifest.Packages]
	deps  Deps
	query *gojq.Code
}

func newPackageComponent(deps Deps) (*packageComponent, error) {
	q, err := gojq.Parse(requestedPackagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse package query: %w", err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("failed to compile package query: %w", err)
	}
	return &packageComponent{
		layered: layered[Package, manifest.Packages]{
			store: deps.Store,
			kind:  manifest.KindPackages,
			items: packagesOf,
			build: func(items []Package) manifest.Packages {
				return manifest.Packages{Packages: namesOf(items)}
			},
		},
		deps:  deps,
		query: code,
	}, nil
}

func packagesOf(doc manifest.Packages) []Package {
	return toPackages(doc.Packages)
}

func toPackages(names []string) []Package {
	items := make([]Package, len(names))
	for i, name := range names {
		items[i] = Package(name)
	}
	return items
}

func (c *packageComponent) Name() string { return "Packages" }

// ScanSystem lists the layered packages of the default deployment.
func (c *packageComponent) ScanSystem(ctx context.Context) ([]Package, error) {
	out, err := executor.Output(ctx, c.deps.Runner, executor.NewCommand("rpm-ostree", "status", "--json"))
	if err != nil {
		return nil, err
	}

	var status interface{}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		return nil, fmt.Errorf("failed to parse rpm-ostree status: %w", err)
	}

	var packages []Package
	iter := c.query.RunWithContext(ctx, status)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		switch v := v.(type) {
		case error:
			return nil, fmt.Errorf("failed to read requested packages: %w", v)
		case string:
			packages = append(packages, Package(v))
		}
	}
	return packages, nil
}

func (c *packageComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Packages], error) {
	return c.load()
}

func (c *packageComponent) ManifestItems(m manifest.Layered[manifest.Packages]) []Package {
	return packagesOf(m.Merged)
}

// Diff compares package names only.
func (c *packageComponent) Diff(system, desired []Package) engine.DriftReport[Package] {
	d := engine.DiffStringSets(namesOf(system), namesOf(desired))
	unique := make(map[string]bool, len(desired))
	for _, p := range desired {
		unique[string(p)] = true
	}
	return engine.DriftReport[Package]{
		ToInstall:   toPackages(d.Added),
		Untracked:   toPackages(d.Removed),
		SyncedCount: len(unique) - len(d.Added),
	}
}

func (c *packageComponent) Capture(system []Package, filter engine.CaptureFilter[Package]) (manifest.Layered[manifest.Packages], error) {
	return c.capture(system, filter, nil)
}

// Reconcile layers missing packages and, with prune, removes untracked ones.
func (c *packageComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[Package]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	var warnings []engine.Warning
	sudo := c.deps.host()

	for _, p := range report.ToInstall {
		cmd := executor.NewCommand("rpm-ostree", "install", "--idempotent", "--allow-inactive", string(p)).WithSudo(sudo)
		actions = append(actions, commandAction(c.deps.Runner, engine.VerbInstall, string(p), cmd))
	}

	if len(report.Untracked) > 0 {
		if pctx.Options.Prune {
			for _, p := range report.Untracked {
				cmd := executor.NewCommand("rpm-ostree", "uninstall", "--idempotent", string(p)).WithSudo(sudo)
				actions = append(actions, commandAction(c.deps.Runner, engine.VerbRemove, string(p), cmd))
			}
		} else {
			warnings = append(warnings, untrackedWarning(len(report.Untracked), "layered packages are"))
		}
	}

	if len(actions) > 0 {
		warnings = append(warnings, engine.Warning{Message: "layered package changes take effect after a reboot"})
	}
	return actions, warnings
}

func namesOf(items []Package) []string {
	names := make([]string, len(items))
	for i, p := range items {
		names[i] = string(p)
	}
	return names
}

func packageEnv(p Package) map[string]interface{} {
	return map[string]interface{}{"key": string(p), "name": string(p), "subsystem": "package"}
}
