package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostsync/pkg/engine"
	"github.com/openfroyo/hostsync/pkg/executor"
)

// header is written at the top of every manifest saved by hostsync.
const header = "# Managed by hostsync. Capture rewrites this file.\n"

// Layers locates the two manifest layers. The system layer ships with the
// image and is read-only; the user layer is writable and wins on conflicts.
type Layers struct {
	SystemDir string `json:"system_dir"`
	UserDir   string `json:"user_dir"`
}

// SystemPath returns the system layer file of kind, or "" without a system layer.
func (l Layers) SystemPath(kind Kind) string {
	if l.SystemDir == "" {
		return ""
	}
	return filepath.Join(l.SystemDir, kind.FileName())
}

// UserPath returns the user layer file of kind.
func (l Layers) UserPath(kind Kind) string {
	return filepath.Join(l.UserDir, kind.FileName())
}

// Document is a manifest document that merges with an upper layer.
type Document[D any] interface {
	Merge(other D) D
}

// Layered holds both layers of one document and their merge.
type Layered[D any] struct {
	System D
	User   D
	Merged D
}

// Store reads and writes validated manifests.
type Store struct {
	layers    Layers
	validator *Validator
}

// NewStore creates a store over the given layers.
func NewStore(layers Layers) (*Store, error) {
	if layers.UserDir == "" {
		return nil, fmt.Errorf("user manifest directory is required")
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Store{layers: layers, validator: v}, nil
}

// Layers returns the layer locations.
func (s *Store) Layers() Layers {
	return s.layers
}

// Validator returns the manifest validator.
func (s *Store) Validator() *Validator {
	return s.validator
}

// Load reads both layers of kind and merges them. Missing files are empty.
func Load[D Document[D]](s *Store, kind Kind) (Layered[D], error) {
	var out Layered[D]

	if path := s.layers.SystemPath(kind); path != "" {
		doc, err := readFile[D](s.validator, kind, path)
		if err != nil {
			return out, err
		}
		out.System = doc
	}

	doc, err := readFile[D](s.validator, kind, s.layers.UserPath(kind))
	if err != nil {
		return out, err
	}
	out.User = doc
	out.Merged = out.System.Merge(out.User)
	return out, nil
}

// Save validates doc and atomically replaces the user layer file of kind.
func Save[D any](s *Store, kind Kind, doc D) error {
	path := s.layers.UserPath(kind)
	if issues := s.validator.Validate(kind, &doc); len(issues) > 0 {
		return &InvalidError{Path: path, Issues: issues}
	}

	data, err := Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if _, err := executor.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return nil
}

// Marshal encodes doc as YAML with the manifest header.
func Marshal(doc interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode strictly decodes YAML into doc. Unknown fields are errors and an
// empty input leaves doc unchanged.
func Decode(data []byte, doc interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readFile[D any](v *Validator, kind Kind, path string) (D, error) {
	var doc D
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := Decode(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if issues := v.Validate(kind, &doc); len(issues) > 0 {
		return doc, &InvalidError{Path: path, Issues: issues}
	}
	return doc, nil
}

// ValidateAll checks every manifest file of both layers and returns the
// issues found. Missing files are not issues.
func (s *Store) ValidateAll() []Issue {
	var issues []Issue
	for _, kind := range Kinds() {
		for _, path := range []string{s.layers.SystemPath(kind), s.layers.UserPath(kind)} {
			if path == "" {
				continue
			}
			issues = append(issues, s.validateFile(kind, path)...)
		}
	}
	return issues
}

func (s *Store) validateFile(kind Kind, path string) []Issue {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return []Issue{{File: path, Message: err.Error()}}
	}

	doc := newDocument(kind)
	if err := Decode(data, doc); err != nil {
		return []Issue{{File: path, Message: err.Error()}}
	}
	issues := s.validator.Validate(kind, doc)
	for i := range issues {
		issues[i].File = path
	}
	return issues
}

// Files returns the manifest files that exist, system layer first.
func (s *Store) Files() []string {
	var files []string
	for _, kind := range Kinds() {
		for _, path := range []string{s.layers.SystemPath(kind), s.layers.UserPath(kind)} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
			}
		}
	}
	return files
}

func newDocument(kind Kind) interface{} {
	switch kind {
	case KindPackages:
		return &Packages{}
	case KindFlatpak:
		return &Flatpak{}
	case KindExtensions:
		return &Extensions{}
	case KindServices:
		return &Services{}
	case KindSettings:
		return &Settings{}
	case KindShims:
		return &Shims{}
	default:
		return &struct{}{}
	}
}

func mergeByKey[T engine.Resource[string, T]](lower, upper []T) []T {
	return engine.MergeLayers[string](lower, upper)
}

// CaptureInto records selected live items into the user layer. Items the
// system layer already declares identically are skipped unless the user
// layer overrides them. A nil same compares with ContentDiffers.
func CaptureInto[T engine.Resource[string, T]](systemLayer, userLayer, live []T, filter engine.CaptureFilter[T], same func(declared, live T) bool) []T {
	if same == nil {
		same = func(declared, live T) bool { return !declared.ContentDiffers(live) }
	}

	declared := make(map[string]T, len(systemLayer))
	for _, it := range systemLayer {
		declared[it.DiffKey()] = it
	}
	overridden := make(map[string]bool, len(userLayer))
	for _, it := range userLayer {
		overridden[it.DiffKey()] = true
	}

	var captured []T
	for _, it := range live {
		if !filter.Allows(it) {
			continue
		}
		key := it.DiffKey()
		if base, ok := declared[key]; ok && !overridden[key] && same(base, it) {
			continue
		}
		captured = append(captured, it)
	}
	return mergeByKey(userLayer, captured)
}
