package engine

import (
	"fmt"
	"strings"
)

// Capability is an operation a subsystem may support.
type Capability string

const (
	// CapabilitySync is the manifest to system direction.
	CapabilitySync Capability = "sync"

	// CapabilityCapture is the system to manifest direction.
	CapabilityCapture Capability = "capture"
)

// Entry is one registered subsystem with its capability flags.
type Entry struct {
	// ID is the normalized subsystem id.
	ID string `json:"id"`

	// Description is a short human-readable description.
	Description string `json:"description"`

	// SupportsCapture reports whether the subsystem can record live state.
	SupportsCapture bool `json:"supports_capture"`

	// SupportsSync reports whether the subsystem can apply the manifest.
	SupportsSync bool `json:"supports_sync"`

	// Subsystem is the implementation.
	Subsystem Subsystem `json:"-"`
}

// Supports reports whether the entry has the capability.
func (e Entry) Supports(c Capability) bool {
	switch c {
	case CapabilitySync:
		return e.SupportsSync
	case CapabilityCapture:
		return e.SupportsCapture
	default:
		return false
	}
}

// Registry catalogs subsystems in registration order. Build a new registry
// per command rather than sharing one.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// NormalizeID lowercases an id and strips hyphens, underscores and spaces,
// so "app-image" and "appimage" are the same subsystem.
func NormalizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToLower(id))
}

// Register adds a subsystem. Capability flags are derived from the planners
// the subsystem exposes.
func (r *Registry) Register(description string, sub Subsystem) error {
	if sub == nil {
		return fmt.Errorf("subsystem is nil")
	}
	id := NormalizeID(sub.ID())
	if id == "" {
		return fmt.Errorf("subsystem id is empty")
	}
	if _, exists := r.index[id]; exists {
		return fmt.Errorf("subsystem %s already registered", id)
	}

	r.index[id] = len(r.entries)
	r.entries = append(r.entries, Entry{
		ID:              id,
		Description:     description,
		SupportsCapture: sub.CapturePlannable() != nil,
		SupportsSync:    sub.SyncPlannable() != nil,
		Subsystem:       sub,
	})
	return nil
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Lookup returns the entry for id after normalization.
func (r *Registry) Lookup(id string) (Entry, bool) {
	i, ok := r.index[NormalizeID(id)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// With returns the entries supporting capability c.
func (r *Registry) With(c Capability) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Supports(c) {
			out = append(out, e)
		}
	}
	return out
}

// Capturable returns the entries that support capture.
func (r *Registry) Capturable() []Entry {
	return r.With(CapabilityCapture)
}

// Syncable returns the entries that support sync.
func (r *Registry) Syncable() []Entry {
	return r.With(CapabilitySync)
}

// IsValid reports whether id names a subsystem supporting capability c.
func (r *Registry) IsValid(c Capability, id string) bool {
	e, ok := r.Lookup(id)
	return ok && e.Supports(c)
}

// IsValidCapturable reports whether id names a capturable subsystem.
func (r *Registry) IsValidCapturable(id string) bool {
	return r.IsValid(CapabilityCapture, id)
}

// IsValidSyncable reports whether id names a syncable subsystem.
func (r *Registry) IsValidSyncable(id string) bool {
	return r.IsValid(CapabilitySync, id)
}

// IDs returns the ids of entries supporting capability c.
func (r *Registry) IDs(c Capability) []string {
	var ids []string
	for _, e := range r.With(c) {
		ids = append(ids, e.ID)
	}
	return ids
}

// Select validates the --only and --exclude ids against capability c and
// returns the selected entries in registration order. An empty only list
// selects every entry; exclude always wins over only.
func (r *Registry) Select(c Capability, only, exclude []string) ([]Entry, error) {
	include, err := r.validateIDs(c, "--only", only)
	if err != nil {
		return nil, err
	}
	excluded, err := r.validateIDs(c, "--exclude", exclude)
	if err != nil {
		return nil, err
	}

	var selected []Entry
	for _, e := range r.With(c) {
		if len(include) > 0 && !include[e.ID] {
			continue
		}
		if excluded[e.ID] {
			continue
		}
		selected = append(selected, e)
	}
	return selected, nil
}

func (r *Registry) validateIDs(c Capability, flag string, ids []string) (map[string]bool, error) {
	set := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := NormalizeID(raw)
		if id == "" {
			continue
		}
		if !r.IsValid(c, id) {
			msg := fmt.Sprintf("unknown subsystem %q for %s", raw, flag)
			if _, ok := r.Lookup(id); ok {
				msg = fmt.Sprintf("subsystem %q does not support %s", raw, c)
			}
			return nil, NewValidationError(msg, nil).
				WithCode(ErrCodeUnknownSubsystem).
				WithOperation(string(c)).
				WithDetail("valid", r.IDs(c))
		}
		set[id] = true
	}
	return set, nil
}

// EffectiveSelection applies exclude over include on normalized ids. An empty
// include selects nothing; callers wanting "all" pass the full id list.
func EffectiveSelection(include, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[NormalizeID(id)] = true
	}
	seen := make(map[string]bool, len(include))
	var out []string
	for _, raw := range include {
		id := NormalizeID(raw)
		if id == "" || excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ParseIDList splits a comma-separated flag value into ids.
func ParseIDList(values ...string) []string {
	var ids []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}
