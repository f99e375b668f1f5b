// Package profile defines rendering profiles, the registry that resolves them by name,
// and the selector that projects a master record through a profile into a view.
package profile

import (
	"encoding/json"

	"github.com/Masterminds/semver/v3"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/record"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

// Profile is a named, reusable set of rules selecting which record fields one output variant exposes.
type Profile struct {
	ID            string         `json:"profileId" yaml:"profileId" jsonschema:"required"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Extends       []string       `json:"extends,omitempty" yaml:"extends,omitempty"`
	Template      string         `json:"template,omitempty" yaml:"template,omitempty"`
	Format        string         `json:"format,omitempty" yaml:"format,omitempty" jsonschema:"enum=docx,enum=markdown"`
	SchemaVersion string         `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
	Fields        []FieldRule    `json:"fields" yaml:"fields"`
	Timestamp     *TimestampRule `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	// Source is the file the profile was loaded from, or "builtin".
	Source string `json:"-" yaml:"-"`
}

// FieldRule includes (or excludes) one field path.
type FieldRule struct {
	Path    string          `json:"path" yaml:"path" jsonschema:"required"`
	Exclude bool            `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Default any             `json:"default,omitempty" yaml:"default,omitempty"`
	Format  *view.Directive `json:"format,omitempty" yaml:"format,omitempty"`
	When    string          `json:"when,omitempty" yaml:"when,omitempty"`
	Where   string          `json:"where,omitempty" yaml:"where,omitempty"`
	Limit   int             `json:"limit,omitempty" yaml:"limit,omitempty" jsonschema:"minimum=0"`
}

// TimestampRule injects the generation time into the view. Its path lives outside the record schema.
type TimestampRule struct {
	Path   string `json:"path" yaml:"path" jsonschema:"required"`
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// DisplayName returns the human name, falling back to the id.
func (p Profile) DisplayName() (name string) {
	name = p.Name
	if name == "" {
		name = p.ID
	}
	return name
}

type rule struct {
	FieldRule
	segments   []string
	hasDefault bool
	defaultVal any
	when       *vm.Program
	where      *vm.Program
}

// Validate compiles every rule without touching a record.
func (p Profile) Validate() (err error) {
	_, err = p.compile()
	return err
}

func (p Profile) compile() (rules []rule, err error) {
	if p.SchemaVersion != "" {
		_, err = semver.NewConstraint(p.SchemaVersion)
		if err != nil {
			err = &InvalidProfileFieldError{Profile: p.ID, Path: "schemaVersion", Reason: err.Error()}
			return rules, err
		}
	}

	if p.Timestamp != nil && len(record.SplitPath(p.Timestamp.Path)) == 0 {
		err = &InvalidProfileFieldError{Profile: p.ID, Path: "timestamp", Reason: "path is required"}
		return rules, err
	}

	rules = make([]rule, 0, len(p.Fields))
	for _, field := range p.Fields {
		var compiled rule
		compiled, err = p.compileRule(field)
		if err != nil {
			return rules, err
		}
		rules = append(rules, compiled)
	}

	return rules, err
}

func (p Profile) compileRule(field FieldRule) (compiled rule, err error) {
	compiled = rule{
		FieldRule: field,
		segments:  record.SplitPath(field.Path),
	}

	fail := func(reason string) (rule, error) {
		return compiled, &InvalidProfileFieldError{Profile: p.ID, Path: field.Path, Reason: reason}
	}

	if len(compiled.segments) == 0 {
		return fail("path is required")
	}

	if field.Exclude && (field.Default != nil || field.Format != nil || field.When != "" || field.Where != "" || field.Limit != 0) {
		return fail("an exclude rule cannot carry default, format, when, where or limit")
	}

	if field.Limit < 0 {
		return fail("limit must not be negative")
	}

	if field.Format != nil {
		err = field.Format.Validate()
		if err != nil {
			return fail(err.Error())
		}
	}

	if field.Default != nil {
		compiled.hasDefault = true
		compiled.defaultVal, err = normalize(field.Default)
		if err != nil {
			return fail("default is not JSON-compatible: " + err.Error())
		}
	}

	if field.When != "" {
		compiled.when, err = compileCondition(field.When)
		if err != nil {
			return fail("when: " + err.Error())
		}
	}

	if field.Where != "" {
		compiled.where, err = compileCondition(field.Where)
		if err != nil {
			return fail("where: " + err.Error())
		}
	}

	return compiled, nil
}

func compileCondition(source string) (program *vm.Program, err error) {
	program, err = expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	return program, err
}

func runCondition(program *vm.Program, env map[string]any) (ok bool, err error) {
	var out any
	out, err = expr.Run(program, env)
	if err != nil {
		return ok, err
	}

	ok, isBool := out.(bool)
	if !isBool {
		err = errors.Errorf("expression returned %T, not bool", out)
	}
	return ok, err
}

// normalize converts profile-supplied values to the types a decoded JSON record holds.
func normalize(value any) (normalized any, err error) {
	var data []byte
	data, err = json.Marshal(value)
	if err != nil {
		return normalized, err
	}

	err = json.Unmarshal(data, &normalized)
	return normalized, err
}
