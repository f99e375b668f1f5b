package record

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaResource is the name every schema is registered under in its compiler.
const schemaResource = "master.schema.json"

// maxSchemaDepth bounds path walks through recursive $refs.
const maxSchemaDepth = 64

//go:embed schema/master.schema.json
var defaultSchema []byte

// Schema is the versioned contract describing which field paths a master record may carry.
type Schema struct {
	compiled *jsonschema.Schema
	version  string
	location string
}

// DefaultSchema compiles the embedded JSON-Resume-shaped schema.
func DefaultSchema() (schema *Schema, err error) {
	schema, err = CompileSchema("embedded:"+schemaResource, defaultSchema)
	return schema, err
}

// LoadSchema reads and compiles a schema file. An empty path selects the embedded default.
func LoadSchema(path string) (schema *Schema, err error) {
	if path == "" {
		schema, err = DefaultSchema()
		return schema, err
	}

	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read schema file: %s", path)
		return schema, err
	}

	schema, err = CompileSchema(path, data)
	return schema, err
}

// CompileSchema compiles a draft 2020-12 JSON Schema. A top-level "version" annotation is kept for profile checks.
func CompileSchema(location string, data []byte) (schema *Schema, err error) {
	var annotations struct {
		Version string `json:"version"`
	}
	err = json.Unmarshal(data, &annotations)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse schema JSON: %s", location)
		return schema, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	err = compiler.AddResource(schemaResource, bytes.NewReader(data))
	if err != nil {
		err = errors.Wrapf(err, "failed to add schema resource: %s", location)
		return schema, err
	}

	var compiled *jsonschema.Schema
	compiled, err = compiler.Compile(schemaResource)
	if err != nil {
		err = errors.Wrapf(err, "failed to compile schema: %s", location)
		return schema, err
	}

	schema = &Schema{
		compiled: compiled,
		version:  annotations.Version,
		location: location,
	}

	return schema, err
}

// Version returns the schema's declared semantic version, or "" when it declares none.
func (s *Schema) Version() (version string) {
	version = s.version
	return version
}

// Location returns where the schema was loaded from.
func (s *Schema) Location() (location string) {
	location = s.location
	return location
}

// Validate checks a decoded JSON document against the schema and returns one line per violation.
func (s *Schema) Validate(document any) (problems []string) {
	err := s.compiled.Validate(document)
	if err == nil {
		return problems
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		problems = append(problems, err.Error())
		return problems
	}

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			problems = append(problems, fmt.Sprintf("%s: %s", location, e.Message))
		}

		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(validationErr)

	if len(problems) == 0 {
		problems = append(problems, validationErr.Error())
	}

	return problems
}

// HasPath reports whether the schema declares the dotted field path. Lists are traversed through their item schema.
func (s *Schema) HasPath(path string) (found bool) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return found
	}

	found = declares(s.compiled, segments, 0)
	return found
}

func declares(schema *jsonschema.Schema, segments []string, depth int) (found bool) {
	if schema == nil || depth > maxSchemaDepth {
		return found
	}

	if len(segments) == 0 {
		found = true
		return found
	}

	if schema.Ref != nil && declares(schema.Ref, segments, depth+1) {
		found = true
		return found
	}

	for _, group := range [][]*jsonschema.Schema{schema.AllOf, schema.AnyOf, schema.OneOf} {
		for _, sub := range group {
			if declares(sub, segments, depth+1) {
				found = true
				return found
			}
		}
	}

	if child, ok := schema.Properties[segments[0]]; ok && declares(child, segments[1:], depth+1) {
		found = true
		return found
	}

	items := itemSchema(schema)
	if items != nil && declares(items, segments, depth+1) {
		found = true
		return found
	}

	return found
}

func itemSchema(schema *jsonschema.Schema) (items *jsonschema.Schema) {
	if schema.Items2020 != nil {
		items = schema.Items2020
		return items
	}

	if single, ok := schema.Items.(*jsonschema.Schema); ok {
		items = single
	}

	return items
}
