// Package subsystems implements the built-in resource kinds of hostsync.
//
// Every subsystem is a SystemComponent bound to the engine through
// engine.NewAdapter. Components read the host through an executor.Runner and
// the manifests through a manifest.Store, so tests run against a
// RecordingRunner and temporary directories.
package subsystems

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// Deps are the collaborators shared by all built-in subsystems.
type Deps struct {
	// Runner executes host commands.
	Runner executor.Runner

	// Store reads and writes manifests.
	Store *manifest.Store

	// Mode selects host or user scope for scans and commands.
	Mode engine.ContextMode

	// ShimDir is where command shims are generated.
	ShimDir string

	// CaptureWhere is an optional expression restricting which items capture records.
	CaptureWhere string
}

func (d Deps) withDefaults() (Deps, error) {
	if d.Runner == nil {
		return d, fmt.Errorf("runner is required")
	}
	if d.Store == nil {
		return d, fmt.Errorf("manifest store is required")
	}
	if d.Mode == "" {
		d.Mode = engine.ContextModeUser
	}
	if err := d.Mode.Validate(); err != nil {
		return d, err
	}
	if d.ShimDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return d, fmt.Errorf("failed to resolve shim directory: %w", err)
		}
		d.ShimDir = filepath.Join(home, ".local", "share", "hostsync", "shims")
	}
	return d, nil
}

func (d Deps) host() bool {
	return d.Mode == engine.ContextModeHost
}

// commandAction returns an action that runs cmds in order and stops at the
// first failure.
func commandAction(r executor.Runner, verb engine.OperationVerb, target string, cmds ...executor.Command) engine.Action {
	return engine.Action{
		Operation: engine.Operation{Verb: verb, Target: target},
		Run: func(ctx context.Context) error {
			for _, cmd := range cmds {
				log.Debug().Str("command", cmd.String()).Msg("Running command")
				if _, err := executor.RunChecked(ctx, r, cmd); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// untrackedWarning tells the user about items apply leaves alone without --prune.
func untrackedWarning(n int, noun string) engine.Warning {
	return engine.Warning{
		Message: fmt.Sprintf("%d %s not in the manifest; run apply --prune to remove them, or capture to record them", n, noun),
	}
}

// layered gives a component the manifest half of the capture contract.
type layered[T engine.Resource[string, T], D manifest.Document[D]] struct {
	store *manifest.Store
	kind  manifest.Kind
	items func(D) []T
	build func([]T) D
}

func (l layered[T, D]) load() (manifest.Layered[D], error) {
	return manifest.Load[D](l.store, l.kind)
}

// capture merges the selected live items into the user layer.
func (l layered[T, D]) capture(live []T, filter engine.CaptureFilter[T], same func(declared, live T) bool) (manifest.Layered[D], error) {
	m, err := l.load()
	if err != nil {
		return m, err
	}
	m.User = l.build(manifest.CaptureInto(l.items(m.System), l.items(m.User), live, filter, same))
	m.Merged = m.System.Merge(m.User)
	return m, nil
}

// ManifestPath returns the user layer file.
func (l layered[T, D]) ManifestPath() string {
	return l.store.Layers().UserPath(l.kind)
}

// WriteManifest saves the user layer of m.
func (l layered[T, D]) WriteManifest(_ context.Context, m manifest.Layered[D]) error {
	return manifest.Save(l.store, l.kind, m.User)
}

// whereFilter compiles a boolean expression over the fields env exposes for
// an item. Unknown names evaluate to nil so one expression can span kinds.
func whereFilter[T any](src string, env func(T) map[string]interface{}) (engine.CaptureFilter[T], error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	var zero T
	program, err := expr.Compile(src, expr.Env(env(zero)), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, engine.NewValidationError("invalid capture filter", err).WithDetail("expression", src)
	}
	return func(item T) bool {
		out, err := expr.Run(program, env(item))
		if err != nil {
			log.Warn().Err(err).Str("expression", src).Msg("Capture filter failed")
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}
