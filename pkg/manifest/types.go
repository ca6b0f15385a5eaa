package manifest

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies a manifest document and its file name.
type Kind string

const (
	KindPackages   Kind = "packages"
	KindFlatpak    Kind = "flatpak"
	KindExtensions Kind = "extensions"
	KindServices   Kind = "services"
	KindSettings   Kind = "settings"
	KindShims      Kind = "shims"
)

// Kinds returns every manifest kind in load order.
func Kinds() []Kind {
	return []Kind{KindPackages, KindFlatpak, KindExtensions, KindServices, KindSettings, KindShims}
}

// FileName returns the file name of the kind within a manifest directory.
func (k Kind) FileName() string {
	return string(k) + ".yaml"
}

// Validate checks if the kind is known.
func (k Kind) Validate() error {
	for _, known := range Kinds() {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("unknown manifest kind: %s", k)
}

// Packages lists layered rpm-ostree packages.
type Packages struct {
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty" validate:"dive,required"`
}

// Merge returns the union of both package lists, receiver order first.
func (p Packages) Merge(other Packages) Packages {
	seen := make(map[string]bool, len(p.Packages)+len(other.Packages))
	var out []string
	for _, list := range [][]string{p.Packages, other.Packages} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return Packages{Packages: out}
}

// FlatpakApp is one Flatpak application.
type FlatpakApp struct {
	// ID is the application id, e.g. org.gnome.Boxes.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Remote is the remote to install from. Empty means flathub.
	Remote string `yaml:"remote,omitempty" json:"remote,omitempty"`
}

func (a FlatpakApp) DiffKey() string { return a.ID }

// ContentDiffers reports a remote mismatch when both sides name one.
func (a FlatpakApp) ContentDiffers(other FlatpakApp) bool {
	return a.Remote != "" && other.Remote != "" && a.Remote != other.Remote
}

func (a FlatpakApp) Merge(other FlatpakApp) FlatpakApp { return other }

// RemoteOrDefault returns the remote, defaulting to flathub.
func (a FlatpakApp) RemoteOrDefault() string {
	if a.Remote == "" {
		return "flathub"
	}
	return a.Remote
}

// Flatpak lists Flatpak applications.
type Flatpak struct {
	Apps []FlatpakApp `yaml:"apps,omitempty" json:"apps,omitempty" validate:"dive"`
}

// Merge merges apps by id, other wins.
func (f Flatpak) Merge(other Flatpak) Flatpak {
	return Flatpak{Apps: mergeByKey(f.Apps, other.Apps)}
}

// Extension is one GNOME Shell extension.
type Extension struct {
	// UUID is the extension uuid, e.g. appindicatorsupport@rgcjonas.gmail.com.
	UUID string `yaml:"uuid" json:"uuid" validate:"required,contains=@"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (e Extension) DiffKey() string { return e.UUID }

// ContentDiffers is always false. The extension subsystem compares the
// enabled state itself.
func (e Extension) ContentDiffers(other Extension) bool { return false }

func (e Extension) Merge(other Extension) Extension { return other }

// IsEnabled returns the desired enabled state.
func (e Extension) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Extensions lists GNOME Shell extensions.
type Extensions struct {
	Extensions []Extension `yaml:"extensions,omitempty" json:"extensions,omitempty" validate:"dive"`
}

// Merge merges extensions by uuid, other wins.
func (e Extensions) Merge(other Extensions) Extensions {
	return Extensions{Extensions: mergeByKey(e.Extensions, other.Extensions)}
}

// UnitState is the desired state of a systemd unit.
type UnitState string

const (
	UnitEnabled  UnitState = "enabled"
	UnitDisabled UnitState = "disabled"
	UnitMasked   UnitState = "masked"
)

// Unit is one systemd unit.
type Unit struct {
	Name  string    `yaml:"name" json:"name" validate:"required"`
	State UnitState `yaml:"state" json:"state" validate:"required,oneof=enabled disabled masked"`

	// Preset is the vendor preset reported by systemd. It is never stored.
	Preset UnitState `yaml:"-" json:"-"`
}

// Customized reports whether a scanned unit deviates from its vendor preset.
// Masked units always count as customized.
func (u Unit) Customized() bool {
	if u.State == UnitMasked {
		return true
	}
	return u.Preset != "" && u.State != u.Preset
}

func (u Unit) DiffKey() string                { return u.Name }
func (u Unit) ContentDiffers(other Unit) bool { return u.State != other.State }
func (u Unit) Merge(other Unit) Unit          { return other }

// Services lists systemd units.
type Services struct {
	Units []Unit `yaml:"units,omitempty" json:"units,omitempty" validate:"dive"`
}

// Merge merges units by name, other wins.
func (s Services) Merge(other Services) Services {
	return Services{Units: mergeByKey(s.Units, other.Units)}
}

// Setting is one gsettings key.
type Setting struct {
	Schema string `yaml:"schema" json:"schema" validate:"required"`
	Key    string `yaml:"key" json:"key" validate:"required"`

	// Value is a GVariant literal as printed by gsettings get.
	Value string `yaml:"value" json:"value" validate:"required"`
}

// DiffKey returns "<schema> <key>".
func (s Setting) DiffKey() string { return s.Schema + " " + s.Key }

func (s Setting) ContentDiffers(other Setting) bool {
	return strings.TrimSpace(s.Value) != strings.TrimSpace(other.Value)
}

func (s Setting) Merge(other Setting) Setting { return other }

// Settings lists gsettings keys.
type Settings struct {
	Settings []Setting `yaml:"settings,omitempty" json:"settings,omitempty" validate:"dive"`
}

// Merge merges settings by schema and key, other wins.
func (s Settings) Merge(other Settings) Settings {
	return Settings{Settings: mergeByKey(s.Settings, other.Settings)}
}

// Shim is a generated wrapper script that forwards to a command.
type Shim struct {
	// Name is the executable name created in the shim directory.
	Name string `yaml:"name" json:"name" validate:"required,excludes=/"`

	// Command is the program the shim runs, followed by Args.
	Command string   `yaml:"command" json:"command" validate:"required"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
}

func (s Shim) DiffKey() string { return s.Name }

// ContentDiffers compares the argument vector word by word: "a b" and
// "a", "b" exec differently.
func (s Shim) ContentDiffers(other Shim) bool {
	return s.Command != other.Command || !slices.Equal(s.Args, other.Args)
}

func (s Shim) Merge(other Shim) Shim { return other }

// CommandLine returns the command and arguments joined by spaces.
func (s Shim) CommandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// Shims lists command shims.
type Shims struct {
	Shims []Shim `yaml:"shims,omitempty" json:"shims,omitempty" validate:"dive"`
}

// Merge merges shims by name, other wins.
func (s Shims) Merge(other Shims) Shims {
	return Shims{Shims: mergeByKey(s.Shims, other.Shims)}
}
