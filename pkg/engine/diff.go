package engine

// Change pairs the old and new value of an item whose content differs.
type Change[T any] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

// ItemDiff is the result of comparing two collections by identity.
type ItemDiff[T any] struct {
	// Added contains items whose key appears only in the new collection.
	Added []T `json:"added,omitempty"`

	// Removed contains items whose key appears only in the old collection.
	Removed []T `json:"removed,omitempty"`

	// Changed contains items present in both with differing content.
	Changed []Change[T] `json:"changed,omitempty"`
}

// IsEmpty returns true if the collections were equivalent.
func (d ItemDiff[T]) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// keyIndex indexes items by key. Duplicate keys keep the last value but the
// position of their first occurrence.
type keyIndex[K comparable, T any] struct {
	order []K
	items map[K]T
}

func indexByKey[K comparable, T Keyed[K]](items []T) keyIndex[K, T] {
	idx := keyIndex[K, T]{
		order: make([]K, 0, len(items)),
		items: make(map[K]T, len(items)),
	}
	for _, item := range items {
		key := item.DiffKey()
		if _, seen := idx.items[key]; !seen {
			idx.order = append(idx.order, key)
		}
		idx.items[key] = item
	}
	return idx
}

// DiffCollections compares old against new by DiffKey.
//
// Added and Changed follow the order of new, Removed follows the order of
// old. Duplicate keys within one collection are resolved last-write-wins.
func DiffCollections[K comparable, T Diffable[K, T]](old, new []T) ItemDiff[T] {
	oldIdx := indexByKey[K](old)
	newIdx := indexByKey[K](new)

	var diff ItemDiff[T]
	for _, key := range newIdx.order {
		next := newIdx.items[key]
		prev, ok := oldIdx.items[key]
		if !ok {
			diff.Added = append(diff.Added, next)
			continue
		}
		if prev.ContentDiffers(next) {
			diff.Changed = append(diff.Changed, Change[T]{From: prev, To: next})
		}
	}
	for _, key := range oldIdx.order {
		if _, ok := newIdx.items[key]; !ok {
			diff.Removed = append(diff.Removed, oldIdx.items[key])
		}
	}
	return diff
}

// DiffStringSets compares two sets of plain names. Changed is always empty
// and duplicate names collapse.
func DiffStringSets(old, new []string) ItemDiff[string] {
	d := DiffCollections[string](toNames(old), toNames(new))
	return ItemDiff[string]{
		Added:   fromNames(d.Added),
		Removed: fromNames(d.Removed),
	}
}

// name adapts a plain string to the Diffable contract.
type name string

func (n name) DiffKey() string            { return string(n) }
func (n name) ContentDiffers(_ name) bool { return false }

func toNames(values []string) []name {
	out := make([]name, len(values))
	for i, v := range values {
		out[i] = name(v)
	}
	return out
}

func fromNames(values []name) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
