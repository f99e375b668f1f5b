package profile

import (
	"fmt"
	"strings"
)

// UnknownProfileError is returned when no profile is registered under a name.
type UnknownProfileError struct {
	Name      string
	Available []string
}

func (e *UnknownProfileError) Error() (msg string) {
	msg = fmt.Sprintf("unknown rendering profile %q", e.Name)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

// InvalidProfileFieldError is returned when a profile rule references a field path the record schema does not declare,
// or when the rule itself cannot be applied.
type InvalidProfileFieldError struct {
	Profile string
	Path    string
	Reason  string
}

func (e *InvalidProfileFieldError) Error() (msg string) {
	msg = fmt.Sprintf("profile %q: invalid field %q", e.Profile, e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IncompatibleSchemaError is returned when a profile's schemaVersion constraint rejects the record schema.
type IncompatibleSchemaError struct {
	Profile    string
	Constraint string
	Version    string
}

func (e *IncompatibleSchemaError) Error() (msg string) {
	version := e.Version
	if version == "" {
		version = "(unversioned)"
	}
	msg = fmt.Sprintf("profile %q requires schema %s, record schema is %s", e.Profile, e.Constraint, version)
	return msg
}
