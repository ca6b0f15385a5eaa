package engine

// Keyed is implemented by anything with a stable identity within its domain.
type Keyed[K comparable] interface {
	// DiffKey returns the identifier used to match items across collections.
	DiffKey() K
}

// Diffable is a resource that can be matched by key and compared by content.
// Two values with equal keys are the same managed thing even when their
// content differs.
type Diffable[K comparable, T any] interface {
	Keyed[K]

	// ContentDiffers reports whether other carries different content than
	// the receiver. Only called for values sharing a key.
	ContentDiffers(other T) bool
}

// Mergeable defines conflict resolution when combining manifest layers.
// The conventional implementation returns other.
type Mergeable[T any] interface {
	Merge(other T) T
}

// Resource is a diffable, mergeable manifest item.
type Resource[K comparable, T any] interface {
	Diffable[K, T]
	Mergeable[T]
}

// MergeLayers combines manifest layers in order. Items in later layers are
// merged into earlier items with the same key; new keys are appended in the
// order they first appear.
func MergeLayers[K comparable, T Resource[K, T]](layers ...[]T) []T {
	var (
		order  []K
		merged = make(map[K]T)
	)
	for _, layer := range layers {
		for _, item := range layer {
			key := item.DiffKey()
			existing, ok := merged[key]
			if !ok {
				order = append(order, key)
				merged[key] = item
				continue
			}
			merged[key] = existing.Merge(item)
		}
	}

	out := make([]T, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

// Keys returns the keys of items in order, duplicates included.
func Keys[K comparable, T Keyed[K]](items []T) []K {
	keys := make([]K, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.DiffKey())
	}
	return keys
}
