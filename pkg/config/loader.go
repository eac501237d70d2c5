package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/genprop/genprop/pkg/engine"
)

// Format is a definition file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported definition format for %s (want .yaml, .yml, .cue or .json)", path)
	}
}

// Loader reads property tree definitions and run configurations.
type Loader struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	ctx := cuecontext.New()

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Loader{
		ctx:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		validator: v,
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadTree reads a definition file and returns the validated property tree.
func LoadTree(path string) (*engine.Tree, error) {
	return NewLoader().LoadTree(path)
}

// LoadTree reads a definition file and returns the validated property tree.
func (l *Loader) LoadTree(path string) (*engine.Tree, error) {
	def, err := l.LoadTreeDefinition(path)
	if err != nil {
		return nil, err
	}
	tree, err := def.ToTree()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// LoadTreeDefinition reads a definition file or a directory holding one CUE
// package and returns the validated, unconverted definition.
func (l *Loader) LoadTreeDefinition(path string) (*TreeDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat definition %s: %w", path, err)
	}

	var def TreeDefinition
	if info.IsDir() {
		val, err := l.loadCUEPackage(path)
		if err != nil {
			return nil, err
		}
		if err := l.decodeCUE(SchemaTree, val, &def); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
		}
		format, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		if err := l.decode(SchemaTree, data, path, format, &def); err != nil {
			return nil, err
		}
	}

	if err := l.validateStruct(path, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseTreeDefinition decodes definition content in the given format.
// name is used in error messages.
func (l *Loader) ParseTreeDefinition(data []byte, name string, format Format) (*TreeDefinition, error) {
	var def TreeDefinition
	if err := l.decode(SchemaTree, data, name, format, &def); err != nil {
		return nil, err
	}
	if err := l.validateStruct(name, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// decode parses data into out and checks it against the named schema.
func (l *Loader) decode(schema string, data []byte, name string, format Format, out interface{}) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if err := l.schemas.ValidateAgainstSchema(schema, out); err != nil {
			return l.convertCUEErrors(name, err)
		}
		return nil
	case FormatCUE, FormatJSON:
		// JSON is valid CUE.
		val := l.ctx.CompileBytes(data, cue.Filename(name))
		if err := val.Err(); err != nil {
			return l.convertCUEErrors(name, err)
		}
		return l.decodeCUE(schema, val, out)
	default:
		return fmt.Errorf("unsupported format %q for %s", format, name)
	}
}

func (l *Loader) decodeCUE(schema string, val cue.Value, out interface{}) error {
	unified, err := l.schemas.Unify(schema, val)
	if err != nil {
		return l.convertCUEErrors("", err)
	}
	if err := unified.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", schema, err)
	}
	return nil
}

// loadCUEPackage loads a directory as a CUE package.
func (l *Loader) loadCUEPackage(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files found in %s", dir)
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, l.convertCUEErrors(dir, inst.Err)
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, l.convertCUEErrors(dir, err)
	}
	return val, nil
}

// validateStruct runs struct-tag validation and reports every failing field.
func (l *Loader) validateStruct(name string, v interface{}) error {
	err := l.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate %s: %w", name, err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			File:    name,
			Path:    fieldPath(fe.Namespace()),
			Message: describeFieldError(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", strings.Replace(fe.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors with positions.
func (l *Loader) convertCUEErrors(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", name, err)
	}

	out := make(ValidationErrors, 0, len(errs))
	for _, e := range errs {
		ve := ValidationError{
			File:    name,
			Message: strings.TrimSpace(cueerrors.Details(e, nil)),
		}
		// Prefer a position in the document over one in a built-in schema.
		for _, pos := range cueerrors.Positions(e) {
			if f := pos.Filename(); f != "" && !strings.HasSuffix(f, ".schema.cue") {
				ve.File = f
				ve.Line = pos.Line()
				ve.Column = pos.Column()
				break
			}
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = strings.Join(path, ".")
		}
		out = append(out, ve)
	}
	return out
}
