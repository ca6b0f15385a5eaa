// Package manifest loads, validates and writes the declarative manifests of hostsync.
//
// Each resource kind has one YAML document per layer:
//
//	/usr/share/hostsync/manifests/flatpak.yaml   system layer, shipped with the image
//	~/.config/hostsync/manifests/flatpak.yaml    user layer, written by capture
//
// Load merges the layers by item key with the user layer winning. Documents are
// decoded strictly and validated twice: struct tags through validator/v10 and
// the built-in CUE schemas of SchemaRegistry.
package manifest
