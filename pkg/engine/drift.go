package engine

import "fmt"

// UpdatePair holds the live and desired value of an item present on both sides.
type UpdatePair[T any] struct {
	Current T `json:"current"`
	Desired T `json:"desired"`
}

// DriftReport is the result of comparing live system state against the manifest.
//
// The keys behind ToInstall, ToUpdate and the synced items partition the
// manifest key set. Untracked keys never appear in the manifest.
type DriftReport[T any] struct {
	// ToInstall contains manifest items absent from the system.
	ToInstall []T `json:"to_install,omitempty"`

	// Untracked contains system items absent from the manifest.
	Untracked []T `json:"untracked,omitempty"`

	// ToUpdate contains items present on both sides with differing content.
	ToUpdate []UpdatePair[T] `json:"to_update,omitempty"`

	// SyncedCount is the number of manifest items that match the system.
	SyncedCount int `json:"synced_count"`
}

// Total returns the number of distinct manifest items covered by the report.
func (r DriftReport[T]) Total() int {
	return len(r.ToInstall) + len(r.ToUpdate) + r.SyncedCount
}

// InSync returns true if applying the manifest would change nothing.
func (r DriftReport[T]) InSync() bool {
	return len(r.ToInstall) == 0 && len(r.ToUpdate) == 0
}

// ComputeDrift is the default drift algorithm: identity diff from system to manifest.
func ComputeDrift[K comparable, T Diffable[K, T]](system, manifest []T) DriftReport[T] {
	diff := DiffCollections[K](system, manifest)

	report := DriftReport[T]{
		ToInstall: diff.Added,
		Untracked: diff.Removed,
	}
	for _, c := range diff.Changed {
		report.ToUpdate = append(report.ToUpdate, UpdatePair[T]{Current: c.From, Desired: c.To})
	}

	manifestKeys := len(indexByKey[K](manifest).order)
	report.SyncedCount = manifestKeys - len(report.ToInstall) - len(report.ToUpdate)
	return report
}

// ComponentStatus is a read-only rollup of a DriftReport.
type ComponentStatus struct {
	// Name is the subsystem display name.
	Name string `json:"name"`

	// Total is the number of manifest items.
	Total int `json:"total"`

	// Synced is the number of manifest items matching the system.
	Synced int `json:"synced"`

	// Pending is the number of manifest items not present on the system.
	Pending int `json:"pending"`

	// Untracked is the number of system items not in the manifest.
	Untracked int `json:"untracked"`

	// ToUpdate is the number of items present on both sides with differing content.
	ToUpdate int `json:"to_update"`
}

// InSync returns true if nothing needs to be installed or updated.
func (s ComponentStatus) InSync() bool {
	return s.Pending == 0 && s.ToUpdate == 0
}

// NewComponentStatus projects a drift report into a status rollup.
func NewComponentStatus[T any](name string, r DriftReport[T]) ComponentStatus {
	return ComponentStatus{
		Name:      name,
		Total:     r.Total(),
		Synced:    r.SyncedCount,
		Pending:   len(r.ToInstall),
		Untracked: len(r.Untracked),
		ToUpdate:  len(r.ToUpdate),
	}
}

// DriftView is a type-erased DriftReport with items rendered as labels.
type DriftView struct {
	Name      string   `json:"name"`
	ToInstall []string `json:"to_install,omitempty"`
	Untracked []string `json:"untracked,omitempty"`
	ToUpdate  []string `json:"to_update,omitempty"`
	Synced    int      `json:"synced"`
}

// NewDriftView renders the items of a drift report by key.
func NewDriftView[K comparable, T Keyed[K]](name string, r DriftReport[T]) DriftView {
	desired := make([]T, 0, len(r.ToUpdate))
	for _, pair := range r.ToUpdate {
		desired = append(desired, pair.Desired)
	}
	return DriftView{
		Name:      name,
		ToInstall: keyLabels[K](r.ToInstall),
		Untracked: keyLabels[K](r.Untracked),
		ToUpdate:  keyLabels[K](desired),
		Synced:    r.SyncedCount,
	}
}

func keyLabels[K comparable, T Keyed[K]](items []T) []string {
	if len(items) == 0 {
		return nil
	}
	labels := make([]string, 0, len(items))
	for _, key := range Keys[K](items) {
		labels = append(labels, fmt.Sprint(key))
	}
	return labels
}
