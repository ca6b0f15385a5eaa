package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Issue is one problem found in a manifest file.
type Issue struct {
	// File is the manifest path, if known.
	File string `json:"file,omitempty"`

	// Path is the field path of the problem.
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// String renders the issue as "file: path: message".
func (i Issue) String() string {
	parts := make([]string, 0, 3)
	if i.File != "" {
		parts = append(parts, i.File)
	}
	if i.Path != "" {
		parts = append(parts, i.Path)
	}
	parts = append(parts, i.Message)
	return strings.Join(parts, ": ")
}

// InvalidError is returned when a manifest file fails validation.
type InvalidError struct {
	Path   string
	Issues []Issue
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		i := issue
		i.File = ""
		msgs = append(msgs, i.String())
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, strings.Join(msgs, "; "))
}

// Validator checks manifest documents with struct tags and CUE schemas.
type Validator struct {
	validate *validator.Validate
	schemas  *SchemaRegistry
}

// NewValidator creates a validator with the built-in schemas.
func NewValidator() (*Validator, error) {
	schemas, err := NewSchemaRegistry()
	if err != nil {
		return nil, err
	}
	return &Validator{
		validate: validator.New(),
		schemas:  schemas,
	}, nil
}

// Validate returns the issues of doc, or nil when it is valid.
func (v *Validator) Validate(kind Kind, doc interface{}) []Issue {
	var issues []Issue

	if err := v.validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Issue{{Message: err.Error()}}
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			})
		}
	}

	issues = append(issues, v.schemas.Validate(kind, doc)...)
	issues = append(issues, duplicateKeys(kind, doc)...)
	return issues
}

// duplicateKeys reports items declared twice within one document.
func duplicateKeys(kind Kind, doc interface{}) []Issue {
	var keys []string
	switch d := doc.(type) {
	case *Packages:
		keys = d.Packages
	case *Flatpak:
		keys = keysOf(d.Apps)
	case *Extensions:
		keys = keysOf(d.Extensions)
	case *Services:
		keys = keysOf(d.Units)
	case *Settings:
		keys = keysOf(d.Settings)
	case *Shims:
		keys = keysOf(d.Shims)
	}

	seen := make(map[string]bool, len(keys))
	var issues []Issue
	for _, k := range keys {
		if seen[k] {
			issues = append(issues, Issue{
				Path:    string(kind),
				Message: fmt.Sprintf("duplicate entry %q", k),
			})
		}
		seen[k] = true
	}
	return issues
}

func keysOf[T interface{ DiffKey() string }](items []T) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.DiffKey()
	}
	return keys
}
