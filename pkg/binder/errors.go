package binder

import (
	"fmt"
)

// TemplateNotFoundError is returned when a template cannot be read or opened.
type TemplateNotFoundError struct {
	Template string
	Err      error
}

func (e *TemplateNotFoundError) Error() (msg string) {
	msg = fmt.Sprintf("template %q not found", e.Template)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TemplateNotFoundError) Unwrap() (err error) {
	err = e.Err
	return err
}

// TemplateBindingError is returned when a template's insertion points do not fit the view.
type TemplateBindingError struct {
	Template       string
	InsertionPoint string
	Reason         string
}

func (e *TemplateBindingError) Error() (msg string) {
	if e.InsertionPoint == "" {
		msg = fmt.Sprintf("template %q: %s", e.Template, e.Reason)
		return msg
	}
	msg = fmt.Sprintf("template %q: insertion point {{%s}}: %s", e.Template, e.InsertionPoint, e.Reason)
	return msg
}
