package profile

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// SchemaID identifies the generated profile file schema.
const SchemaID = "https://github.com/Serendipathy/cv-generation-system/profile.schema.json"

// JSONSchemaExtend documents the profile file format for editors.
func (Profile) JSONSchemaExtend(jss *jsonschema.Schema) {
	jss.Title = "Rendering profile"
	jss.Description = "Selects which master record fields one CV variant exposes and which template it binds."

	if prop, ok := jss.Properties.Get("extends"); ok {
		prop.Description = "Profiles whose fields this profile inherits. Later entries and the profile itself win."
	}
	if prop, ok := jss.Properties.Get("schemaVersion"); ok {
		prop.Description = "Semantic version constraint the record schema must satisfy, e.g. \">= 1.0.0, < 2.0.0\"."
	}
}

// JSONSchemaExtend documents field rules.
func (FieldRule) JSONSchemaExtend(jss *jsonschema.Schema) {
	if prop, ok := jss.Properties.Get("when"); ok {
		prop.Description = "Expression over the whole record; the field is included only when it is true."
	}
	if prop, ok := jss.Properties.Get("where"); ok {
		prop.Description = "Expression over each list element (its fields, it, record); elements for which it is false are dropped."
	}
	if prop, ok := jss.Properties.Get("limit"); ok {
		prop.Description = "Keep at most this many list elements after filtering. Zero keeps all."
	}
}

// JSONSchema returns the JSON Schema of profile files, indented.
func JSONSchema() (data []byte, err error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}

	schema := reflector.Reflect(&Profile{})
	schema.ID = SchemaID

	data, err = json.MarshalIndent(schema, "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal profile schema")
		return data, err
	}

	return data, err
}
