package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SystemDataDir is where the image ships read-only hostsync data.
const SystemDataDir = "/usr/share/hostsync"

// Paths contains the standard filesystem locations of hostsync.
type Paths struct {
	// ConfigFile is the tool configuration (~/.config/hostsync/config.yaml).
	ConfigFile string

	// ManifestDir is the writable manifest layer.
	ManifestDir string

	// SystemManifestDir is the read-only manifest layer shipped with the image.
	SystemManifestDir string

	// PolicyDir holds user policies.
	PolicyDir string

	// SystemPolicyDir holds policies shipped with the image.
	SystemPolicyDir string

	// HistoryPath is the run history database.
	HistoryPath string

	// ShimDir is where command shims are generated.
	ShimDir string
}

// DefaultPaths returns the default paths, honoring the XDG base directories.
func DefaultPaths() (*Paths, error) {
	configHome, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return nil, err
	}
	stateHome, err := xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
	if err != nil {
		return nil, err
	}
	dataHome, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return nil, err
	}

	home := filepath.Join(configHome, "hostsync")
	return &Paths{
		ConfigFile:        filepath.Join(home, "config.yaml"),
		ManifestDir:       filepath.Join(home, "manifests"),
		SystemManifestDir: filepath.Join(SystemDataDir, "manifests"),
		PolicyDir:         filepath.Join(home, "policies"),
		SystemPolicyDir:   filepath.Join(SystemDataDir, "policies"),
		HistoryPath:       filepath.Join(stateHome, "hostsync", "history.db"),
		ShimDir:           filepath.Join(dataHome, "hostsync", "shims"),
	}, nil
}

func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, fallback), nil
}

// GetConfigFile returns the config file path.
// If HOSTSYNC_CONFIG is set, it takes precedence.
func GetConfigFile() (string, error) {
	if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		return envPath, nil
	}

	paths, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return paths.ConfigFile, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' {
		return "", fmt.Errorf("cannot expand %q: only ~ and ~/ are supported", path)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/")), nil
}
