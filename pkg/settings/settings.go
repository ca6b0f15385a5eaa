// Package settings loads the hostsync tool configuration from
// ~/.config/hostsync/config.yaml and HOSTSYNC_* environment variables.
package settings

import (
	"fmt"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/manifest"
	"github.com/openfroyo/hostsync/pkg/telemetry"
)

// Settings is the effective tool configuration of one invocation.
type Settings struct {
	// ManifestDir is the writable manifest layer.
	// Env: HOSTSYNC_MANIFEST_DIR
	ManifestDir string `mapstructure:"manifestDir"`

	// SystemManifestDir is the read-only manifest layer. Empty disables it.
	// Env: HOSTSYNC_SYSTEM_MANIFEST_DIR
	SystemManifestDir string `mapstructure:"systemManifestDir"`

	// Mode is "user" or "host".
	// Env: HOSTSYNC_MODE
	Mode string `mapstructure:"mode"`

	// ShimDir is where command shims are generated.
	ShimDir string `mapstructure:"shimDir"`

	// HistoryPath is the run history database. Empty disables history.
	// Env: HOSTSYNC_HISTORY_PATH
	HistoryPath string `mapstructure:"historyPath"`

	// HistoryKeep is how many runs are retained. Zero keeps everything.
	HistoryKeep int `mapstructure:"historyKeep"`

	// PolicyDirs are searched for .rego and .json policies. Missing
	// directories are skipped.
	PolicyDirs []string `mapstructure:"policyDirs"`

	// ProtectedUnits are systemd units the protected-units policy refuses to
	// disable or mask.
	ProtectedUnits []string `mapstructure:"protectedUnits"`

	// DisabledPolicies are policy names that are not evaluated.
	DisabledPolicies []string `mapstructure:"disabledPolicies"`

	// Telemetry holds the logging, tracing, metrics and events sections.
	Telemetry telemetry.Config `mapstructure:",squash"`
}

// ContextMode returns the configured mode.
func (s *Settings) ContextMode() engine.ContextMode {
	return engine.ContextMode(s.Mode)
}

// Layers returns the manifest layers.
func (s *Settings) Layers() manifest.Layers {
	return manifest.Layers{
		SystemDir: s.SystemManifestDir,
		UserDir:   s.ManifestDir,
	}
}

// Validate checks the settings after defaults were applied.
func (s *Settings) Validate() error {
	if s.ManifestDir == "" {
		return fmt.Errorf("manifestDir is required")
	}
	if s.SystemManifestDir != "" && s.SystemManifestDir == s.ManifestDir {
		return fmt.Errorf("systemManifestDir and manifestDir must differ")
	}
	if err := s.ContextMode().Validate(); err != nil {
		return err
	}
	if s.HistoryKeep < 0 {
		return fmt.Errorf("historyKeep must not be negative, got: %d", s.HistoryKeep)
	}
	return s.Telemetry.Validate()
}

// expand resolves ~ in every path setting.
func (s *Settings) expand() error {
	for _, p := range []*string{&s.ManifestDir, &s.SystemManifestDir, &s.ShimDir, &s.HistoryPath, &s.Telemetry.Metrics.TextfilePath} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	for i, dir := range s.PolicyDirs {
		expanded, err := ExpandPath(dir)
		if err != nil {
			return err
		}
		s.PolicyDirs[i] = expanded
	}
	return nil
}
