package subsystems

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
	"github.com/openfroyo/hostsync/pkg/manifest"
)

// shimMarker prefixes the metadata line of every generated shim.
const shimMarker = "# hostsync-shim: "

// shimComponent generates wrapper scripts from the manifest. Shims are
// derived files: there is nothing on the system to capture from.
type shimComponent struct {
	store *manifest.Store
	dir   string
}

func newShimComponent(deps Deps) *shimComponent {
	return &shimComponent{store: deps.Store, dir: deps.ShimDir}
}

func (c *shimComponent) Name() string { return "Shims" }

// ScanSystem reads the shims generated in the shim directory. Files without
// the marker are ignored.
func (c *shimComponent) ScanSystem(ctx context.Context) ([]manifest.Shim, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shim directory: %w", err)
	}

	var shims []manifest.Shim
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read shim: %w", err)
		}
		shim, ok := parseShim(entry.Name(), data)
		if ok {
			shims = append(shims, shim)
		}
	}
	return shims, nil
}

func (c *shimComponent) LoadManifest(ctx context.Context) (manifest.Layered[manifest.Shims], error) {
	return manifest.Load[manifest.Shims](c.store, manifest.KindShims)
}

func (c *shimComponent) ManifestItems(m manifest.Layered[manifest.Shims]) []manifest.Shim {
	return m.Merged.Shims
}

// Reconcile writes missing or outdated shims. With prune, generated shims
// that are no longer declared are deleted.
func (c *shimComponent) Reconcile(pctx *engine.PlanContext, report engine.DriftReport[manifest.Shim]) ([]engine.Action, []engine.Warning) {
	var actions []engine.Action
	var warnings []engine.Warning

	for _, shim := range report.ToInstall {
		actions = append(actions, c.write(engine.VerbCreate, shim))
	}
	for _, pair := range report.ToUpdate {
		actions = append(actions, c.write(engine.VerbUpdate, pair.Desired))
	}

	if len(report.Untracked) > 0 {
		if pctx.Options.Prune {
			for _, shim := range report.Untracked {
				path := filepath.Join(c.dir, shim.Name)
				actions = append(actions, engine.Action{
					Operation: engine.Operation{Verb: engine.VerbDelete, Target: path},
					Run: func(ctx context.Context) error {
						return os.Remove(path)
					},
				})
			}
		} else {
			warnings = append(warnings, untrackedWarning(len(report.Untracked), "generated shims are"))
		}
	}
	return actions, warnings
}

func (c *shimComponent) write(verb engine.OperationVerb, shim manifest.Shim) engine.Action {
	path := filepath.Join(c.dir, shim.Name)
	return engine.Action{
		Operation: engine.Operation{Verb: verb, Target: fmt.Sprintf("%s -> %s", path, shim.CommandLine())},
		Run: func(ctx context.Context) error {
			content, err := renderShim(shim)
			if err != nil {
				return err
			}
			_, err = executor.WriteFile(path, content, 0o755)
			return err
		},
	}
}

type shimMeta struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// renderShim produces a POSIX shell script that execs the shim command with
// the caller's arguments appended.
func renderShim(shim manifest.Shim) ([]byte, error) {
	meta, err := json.Marshal(shimMeta{Command: shim.Command, Args: shim.Args})
	if err != nil {
		return nil, err
	}

	words := make([]string, 0, len(shim.Args)+1)
	for _, w := range append([]string{shim.Command}, shim.Args...) {
		words = append(words, shellQuote(w))
	}

	var buf bytes.Buffer
	buf.WriteString("#!/bin/sh\n")
	buf.WriteString(shimMarker)
	buf.Write(meta)
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "exec %s \"$@\"\n", strings.Join(words, " "))
	return buf.Bytes(), nil
}

func parseShim(name string, data []byte) (manifest.Shim, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, shimMarker) {
			continue
		}
		var meta shimMeta
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, shimMarker)), &meta); err != nil {
			return manifest.Shim{}, false
		}
		return manifest.Shim{Name: name, Command: meta.Command, Args: meta.Args}, true
	}
	return manifest.Shim{}, false
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@+,", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
