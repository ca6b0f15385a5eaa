package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/hostsync/pkg/engine"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOSTSYNC_CONFIG", "")
	return home
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	return l
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	s, err := newTestLoader(t).Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if want := filepath.Join(home, ".config", "hostsync", "manifests"); s.ManifestDir != want {
		t.Errorf("expected manifest dir %s, got %s", want, s.ManifestDir)
	}
	if s.SystemManifestDir != "/usr/share/hostsync/manifests" {
		t.Errorf("unexpected system manifest dir %s", s.SystemManifestDir)
	}
	if want := filepath.Join(home, ".local", "state", "hostsync", "history.db"); s.HistoryPath != want {
		t.Errorf("expected history path %s, got %s", want, s.HistoryPath)
	}
	if s.ContextMode() != engine.ContextModeUser {
		t.Errorf("expected user mode, got %s", s.Mode)
	}
	if s.HistoryKeep != 200 {
		t.Errorf("expected historyKeep 200, got %d", s.HistoryKeep)
	}
	if len(s.PolicyDirs) != 2 {
		t.Errorf("expected 2 policy dirs, got %v", s.PolicyDirs)
	}
	if s.Telemetry.Logging.Level != "info" || s.Telemetry.Events.BufferSize != 256 {
		t.Errorf("unexpected telemetry defaults %+v", s.Telemetry)
	}

	layers := s.Layers()
	if layers.UserDir != s.ManifestDir || layers.SystemDir != s.SystemManifestDir {
		t.Errorf("unexpected layers %+v", layers)
	}
}

func TestLoad_File(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
manifestDir: ~/dotfiles/hostsync
systemManifestDir: ""
mode: host
historyKeep: 5
protectedUnits:
  - gdm.service
  - NetworkManager.service
logging:
  level: debug
  format: json
tracing:
  enabled: true
  exporter: stdout
  exportTimeout: 3s
metrics:
  enabled: true
  textfilePath: ~/metrics/hostsync.prom
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := newTestLoader(t)
	s, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if want := filepath.Join(home, "dotfiles", "hostsync"); s.ManifestDir != want {
		t.Errorf("expected %s, got %s", want, s.ManifestDir)
	}
	if s.SystemManifestDir != "" || s.Layers().SystemDir != "" {
		t.Errorf("expected system layer disabled, got %q", s.SystemManifestDir)
	}
	if s.ContextMode() != engine.ContextModeHost || s.HistoryKeep != 5 {
		t.Errorf("unexpected mode %s keep %d", s.Mode, s.HistoryKeep)
	}
	if strings.Join(s.ProtectedUnits, ",") != "gdm.service,NetworkManager.service" {
		t.Errorf("unexpected protected units %v", s.ProtectedUnits)
	}
	if s.Telemetry.Logging.Level != "debug" || s.Telemetry.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", s.Telemetry.Logging)
	}
	if !s.Telemetry.Tracing.Enabled || s.Telemetry.Tracing.ExportTimeout != 3*time.Second {
		t.Errorf("unexpected tracing %+v", s.Telemetry.Tracing)
	}
	if want := filepath.Join(home, "metrics", "hostsync.prom"); s.Telemetry.Metrics.TextfilePath != want {
		t.Errorf("expected textfile %s, got %s", want, s.Telemetry.Metrics.TextfilePath)
	}
	if l.ConfigFileUsed() != path {
		t.Errorf("expected config file %s, got %s", path, l.ConfigFileUsed())
	}
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("HOSTSYNC_MANIFEST_DIR", "/srv/manifests")
	t.Setenv("HOSTSYNC_MODE", "host")
	t.Setenv("HOSTSYNC_LOG_LEVEL", "warn")
	t.Setenv("HOSTSYNC_METRICS_ENABLED", "true")

	s, err := newTestLoader(t).Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.ManifestDir != "/srv/manifests" {
		t.Errorf("expected env manifest dir, got %s", s.ManifestDir)
	}
	if s.Mode != "host" {
		t.Errorf("expected env mode, got %s", s.Mode)
	}
	if s.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected env log level, got %s", s.Telemetry.Logging.Level)
	}
	if !s.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled from env")
	}
}

func TestLoad_ConfigEnvOverride(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "alt.yaml")
	if err := os.WriteFile(path, []byte("historyKeep: 7\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("HOSTSYNC_CONFIG", path)

	s, err := newTestLoader(t).Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.HistoryKeep != 7 {
		t.Errorf("expected historyKeep from HOSTSYNC_CONFIG file, got %d", s.HistoryKeep)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	isolate(t)
	t.Setenv("HOSTSYNC_MODE", "host")

	l := newTestLoader(t)
	l.Set("mode", "user")
	s, err := l.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Mode != "user" {
		t.Errorf("expected flag to win over env, got %s", s.Mode)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
	}{
		{name: "explicit file missing", missing: true},
		{name: "invalid yaml", content: "mode: [\n"},
		{name: "invalid mode", content: "mode: root\n"},
		{name: "negative keep", content: "historyKeep: -1\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "same layers", content: "manifestDir: /a\nsystemManifestDir: /a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			if !tt.missing {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("failed to write config: %v", err)
				}
			}
			if _, err := newTestLoader(t).Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDump(t *testing.T) {
	isolate(t)
	l := newTestLoader(t)
	if _, err := l.Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	data, err := l.Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if !strings.Contains(string(data), "manifestdir:") {
		t.Errorf("expected manifestdir key in dump, got:\n%s", data)
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "/etc/hostsync", want: "/etc/hostsync"},
		{in: "~", want: home},
		{in: "~/manifests", want: filepath.Join(home, "manifests")},
		{in: "~other/manifests", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExpandPath(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPaths_XDG(t *testing.T) {
	isolate(t)
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "relative/ignored")

	p, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths failed: %v", err)
	}
	if p.ConfigFile != "/xdg/config/hostsync/config.yaml" {
		t.Errorf("unexpected config file %s", p.ConfigFile)
	}
	if strings.HasPrefix(p.HistoryPath, "relative") {
		t.Errorf("relative XDG_STATE_HOME must be ignored, got %s", p.HistoryPath)
	}
}
