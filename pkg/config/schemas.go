package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaTree = "tree"
	SchemaRun  = "run"
)

// SchemaRegistry manages CUE schemas for validation.
// Schemas and the values checked against them share one cue.Context.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in schemas.
// A nil ctx gets a fresh context.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema(SchemaTree, builtinTreeSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaRun, builtinRunSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles and registers a CUE schema under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.ctx.CompileString(schema, cue.Filename(name+".schema.cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify checks val against the named schema and returns the unified value.
// val must have been built with the registry's context.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema encodes a Go value and checks it against the named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	_, err := sr.Unify(schemaName, dataVal)
	return err
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinTreeSchema = `
root:     string & !=""
release?: string
properties: [...#Property] & [_, ...]

#Property: {
	id:     string & !=""
	name?:  string
	steps?: [...#Step]
}

#Step: {
	number:       int & >=1
	name?:        string
	required?:    bool
	requirement?: "all" | "any" | "at_least"
	min?:         int & >=0
	children?:    [...(string & !="")]
	evidence?:    [...(string & !="")]
}
`

const builtinRunSchema = `
tree:         string & !=""
parallelism?: int & >=0
store?:       string
output?:      "table" | "json"
samples: [...#Sample] & [_, ...]
telemetry?: {...}

#Sample: {
	name:     string & !=""
	evidence: [...#Evidence] & [_, ...]
}

#Evidence: {
	path:   string & !=""
	format: "longform" | "interproscan"
}
`
