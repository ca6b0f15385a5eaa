package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Keeps the browser installed.
# Local policy.

package local.browser

import rego.v1

deny contains msg if {
	some op in input.operations
	op.target == "org.mozilla.firefox"
	op.verb == "remove"
	msg := "keep firefox"
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	policyFile := filepath.Join(t.TempDir(), "keep-browser.rego")
	writeFile(t, policyFile, testRego)

	policy, err := loader.load(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "keep-browser" {
		t.Errorf("Expected name 'keep-browser', got '%s'", policy.Name)
	}
	if policy.Description != "Keeps the browser installed. Local policy." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if policy.Source != policyFile {
		t.Errorf("Expected source %s, got %s", policyFile, policy.Source)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	policyFile := filepath.Join(t.TempDir(), "from-json.json")
	data, err := json.Marshal(Policy{
		Description: "A test policy",
		Rego:        "package test\n\nimport rego.v1\n\ndeny contains \"no\" if { false }\n",
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	loaded, err := loader.load(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != "from-json" {
		t.Errorf("Expected name from file, got '%s'", loaded.Name)
	}
	if loaded.Description != "A test policy" || !loaded.Enabled {
		t.Errorf("Unexpected policy %+v", loaded)
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "broken.json")
	writeFile(t, policyFile, "{not json")

	if _, err := loader.load(policyFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), testRego)
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), testRego)
	writeFile(t, filepath.Join(dir, "README.md"), "# not a policy")
	writeFile(t, filepath.Join(dir, "bad.json"), "{")

	policies, err := loader.LoadFromPaths(context.Background(), []string{
		dir,
		filepath.Join(dir, "missing"),
	})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	names := map[string]bool{}
	for _, p := range policies {
		names[p.Name] = true
	}
	if len(policies) != 2 || !names["a"] || !names["b"] {
		t.Errorf("Expected policies a and b, got %v", names)
	}
}

func TestLoadFromPaths_LaterPathOverrides(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	system := t.TempDir()
	user := t.TempDir()
	writeFile(t, filepath.Join(system, "keep-browser.rego"), testRego)
	writeFile(t, filepath.Join(system, "other.rego"), testRego)
	writeFile(t, filepath.Join(user, "keep-browser.rego"), "# Overridden.\npackage user.browser\n")

	policies, err := loader.LoadFromPaths(context.Background(), []string{system, user})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "keep-browser" || policies[0].Description != "Overridden." {
		t.Errorf("Expected user policy to replace the system one in place, got %+v", policies[0])
	}
	if policies[0].Source != filepath.Join(user, "keep-browser.rego") {
		t.Errorf("Unexpected source %s", policies[0].Source)
	}
}

func TestLoadFromPaths_ExplicitFileError(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "empty.json")
	writeFile(t, policyFile, `{"name": "empty"}`)

	if _, err := loader.LoadFromPaths(context.Background(), []string{policyFile}); err == nil {
		t.Error("Expected error for a policy without rego")
	}
}

func TestLoader_Cache(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "cached.rego")
	writeFile(t, policyFile, "package first\n")
	info, err := os.Stat(policyFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if _, err := loader.load(policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	// Same size and mtime: the cached policy is served.
	writeFile(t, policyFile, "package other\n")
	if err := os.Chtimes(policyFile, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	cached, err := loader.load(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if cached.Rego != "package first\n" {
		t.Errorf("Expected cached policy, got %q", cached.Rego)
	}

	writeFile(t, policyFile, "package changed\n")
	fresh, err := loader.load(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if fresh.Rego != "package changed\n" {
		t.Errorf("Expected reloaded policy, got %q", fresh.Rego)
	}

	loader.forget(policyFile)
	if _, ok := loader.cache[policyFile]; ok {
		t.Error("Expected forget to drop the cache entry")
	}
}

func TestIsPolicyFile(t *testing.T) {
	tests := map[string]bool{
		"/p/a.rego":       true,
		"/p/b.json":       true,
		"/p/.#a.rego":     false,
		"/p/README.md":    false,
		"/p/a.rego.swp":   false,
		"/p/.hidden.json": false,
	}
	for path, want := range tests {
		if got := isPolicyFile(path); got != want {
			t.Errorf("isPolicyFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatch_NoPaths(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	err := loader.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func([]Policy) error { return nil })
	if err == nil {
		t.Error("Expected error when no policy path exists")
	}
	if err := loader.StopWatching(); err != nil {
		t.Errorf("StopWatching failed: %v", err)
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep-browser.rego"), testRego)

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	p, err := eng.GetPolicy("keep-browser")
	if err != nil {
		t.Fatalf("Expected loaded policy: %v", err)
	}
	if p.Source == "" {
		t.Error("Expected policy source to be set")
	}
}

func TestWatch_Reload(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "new.rego"), testRego)

	select {
	case p := <-reloaded:
		if len(p) != 1 || p[0].Name != "new" {
			t.Errorf("Unexpected reload %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
