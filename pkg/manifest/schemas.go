package manifest

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaRegistry holds the CUE schema of every manifest kind.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[Kind]cue.Value
	mu      sync.Mutex
}

// NewSchemaRegistry compiles the built-in manifest schemas.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[Kind]cue.Value),
	}

	root := sr.ctx.CompileString(builtinManifestSchemas, cue.Filename("manifests.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest schemas: %w", err)
	}

	for kind, def := range schemaDefinitions {
		val := root.LookupPath(cue.ParsePath(def))
		if err := val.Err(); err != nil {
			return nil, fmt.Errorf("schema %s not found: %w", def, err)
		}
		sr.schemas[kind] = val
	}
	return sr, nil
}

// Validate unifies data with the schema of kind and reports every violation.
func (sr *SchemaRegistry) Validate(kind Kind, data interface{}) []Issue {
	// cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[kind]
	if !ok {
		return []Issue{{Message: fmt.Sprintf("no schema for kind %s", kind)}}
	}

	val := sr.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return []Issue{{Message: fmt.Sprintf("failed to encode manifest: %v", err)}}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

func convertCUEErrors(err error) []Issue {
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issues = append(issues, Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return issues
}

var schemaDefinitions = map[Kind]string{
	KindPackages:   "#Packages",
	KindFlatpak:    "#Flatpak",
	KindExtensions: "#Extensions",
	KindServices:   "#Services",
	KindSettings:   "#Settings",
	KindShims:      "#Shims",
}

const builtinManifestSchemas = `
#Packages: {
	packages?: [...string & =~"^[A-Za-z0-9][A-Za-z0-9._+-]*$"]
}

#Flatpak: {
	apps?: [...{
		// reverse-DNS application id
		id:      string & =~"^[A-Za-z][A-Za-z0-9_-]*(\\.[A-Za-z0-9_-]+)+$"
		remote?: string & !=""
	}]
}

#Extensions: {
	extensions?: [...{
		uuid:     string & =~"^[^@ ]+@[^@ ]+$"
		enabled?: bool
	}]
}

#Services: {
	units?: [...{
		name:  string & =~"^[A-Za-z0-9:_.@-]+\\.(service|socket|timer|path|mount|automount|target)$"
		state: "enabled" | "disabled" | "masked"
	}]
}

#Settings: {
	settings?: [...{
		schema: string & =~"^[A-Za-z][A-Za-z0-9-]*(\\.[A-Za-z0-9-]+)+$"
		key:    string & =~"^[a-z0-9-]+$"
		value:  string & !=""
	}]
}

#Shims: {
	shims?: [...{
		name:    string & =~"^[A-Za-z0-9._+-]+$"
		command: string & !=""
		args?: [...string]
	}]
}
`
