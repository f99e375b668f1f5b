package view

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind names a formatting directive.
type Kind string

const (
	KindHyperlink Kind = "hyperlink"
	KindMailto    Kind = "mailto"
	KindUpper     Kind = "upper"
	KindLower     Kind = "lower"
	KindTitle     Kind = "title"
	KindDate      Kind = "date"
	KindJoin      Kind = "join"
)

const (
	defaultDateLayout = "Jan 2006"
	defaultSeparator  = ", "
)

//nolint:gochecknoglobals // Lookup order for link-shaped objects
var (
	displayFields = []string{"display", "text", "label", "network", "name"}
	targetFields  = []string{"target", "url", "href"}
	dateLayouts   = []string{"2006-01-02", "2006-01", "2006"}
)

// Directive tells the binder how a value should be rendered in the target format.
type Directive struct {
	Type         Kind   `json:"type" yaml:"type" jsonschema:"enum=hyperlink,enum=mailto,enum=upper,enum=lower,enum=title,enum=date,enum=join"`
	Text         string `json:"text,omitempty" yaml:"text,omitempty"`
	DisplayField string `json:"displayField,omitempty" yaml:"displayField,omitempty"`
	TargetField  string `json:"targetField,omitempty" yaml:"targetField,omitempty"`
	Layout       string `json:"layout,omitempty" yaml:"layout,omitempty"`
	Separator    string `json:"separator,omitempty" yaml:"separator,omitempty"`
}

// Link is a resolved clickable construct.
type Link struct {
	Display string
	Target  string
}

// Validate checks the directive type is known.
func (d Directive) Validate() (err error) {
	switch d.Type {
	case KindHyperlink, KindMailto, KindUpper, KindLower, KindTitle, KindDate, KindJoin:
		return err
	case "":
		err = errors.New("format directive requires a type")
	default:
		err = errors.Errorf("unknown format directive type %q", d.Type)
	}
	return err
}

// IsLink reports whether the directive renders as a clickable construct.
func (d Directive) IsLink() (ok bool) {
	ok = d.Type == KindHyperlink || d.Type == KindMailto
	return ok
}

// Link resolves a hyperlink or mailto directive against its value.
func (f Formatted) Link() (link Link, err error) {
	if !f.Directive.IsLink() {
		err = errors.Errorf("directive %q is not a link", f.Directive.Type)
		return link, err
	}

	switch typed := f.Value.(type) {
	case map[string]any:
		link, err = f.objectLink(typed)
		if err != nil {
			return link, err
		}
	default:
		target, ok := FormatScalar(typed)
		if !ok || target == "" {
			err = errors.Errorf("cannot build a link from %T", f.Value)
			return link, err
		}
		link.Target = target
	}

	if f.Directive.Type == KindMailto && !strings.HasPrefix(strings.ToLower(link.Target), "mailto:") {
		if link.Display == "" {
			link.Display = link.Target
		}
		link.Target = "mailto:" + link.Target
	}

	if f.Directive.Text != "" {
		link.Display = f.Directive.Text
	}

	if link.Display == "" {
		link.Display = link.Target
	}

	return link, err
}

func (f Formatted) objectLink(object map[string]any) (link Link, err error) {
	targets := targetFields
	if f.Directive.Type == KindMailto {
		targets = append([]string{"email"}, targets...)
	}
	if f.Directive.TargetField != "" {
		targets = []string{f.Directive.TargetField}
	}

	link.Target = firstString(object, targets)
	if link.Target == "" {
		err = errors.Errorf("link object has no target field (tried %s)", strings.Join(targets, ", "))
		return link, err
	}

	displays := displayFields
	if f.Directive.DisplayField != "" {
		displays = []string{f.Directive.DisplayField}
	}
	link.Display = firstString(object, displays)

	return link, err
}

func firstString(object map[string]any, keys []string) (value string) {
	for _, key := range keys {
		raw, ok := object[key]
		if !ok {
			continue
		}
		text, ok := FormatScalar(raw)
		if ok && text != "" {
			value = text
			return value
		}
	}
	return value
}

// Text renders the value as plain text. Link directives yield their display text.
func (f Formatted) Text() (text string, err error) {
	switch f.Directive.Type {
	case KindHyperlink, KindMailto:
		var link Link
		link, err = f.Link()
		text = link.Display
		return text, err
	case KindJoin:
		text, err = f.join()
		return text, err
	}

	base, ok := FormatScalar(f.Value)
	if !ok {
		err = errors.Errorf("directive %q cannot format %T", f.Directive.Type, f.Value)
		return text, err
	}

	switch f.Directive.Type {
	case KindUpper:
		text = cases.Upper(language.Und).String(base)
	case KindLower:
		text = cases.Lower(language.Und).String(base)
	case KindTitle:
		text = cases.Title(language.Und).String(base)
	case KindDate:
		text, err = formatDate(base, f.Directive.Layout)
	default:
		text = base
	}

	return text, err
}

func (f Formatted) join() (text string, err error) {
	list, ok := f.Value.([]any)
	if !ok {
		text, ok = FormatScalar(f.Value)
		if !ok {
			err = errors.Errorf("join directive needs a list, got %T", f.Value)
		}
		return text, err
	}

	separator := f.Directive.Separator
	if separator == "" {
		separator = defaultSeparator
	}

	parts := make([]string, 0, len(list))
	for i, element := range list {
		part, ok := FormatScalar(element)
		if !ok {
			err = errors.Errorf("join directive: element %d is %T, not a scalar", i, element)
			return text, err
		}
		parts = append(parts, part)
	}

	text = strings.Join(parts, separator)
	return text, err
}

func formatDate(value, layout string) (text string, err error) {
	if value == "" {
		return text, err
	}

	if layout == "" {
		layout = defaultDateLayout
	}

	for _, input := range dateLayouts {
		parsed, parseErr := time.Parse(input, value)
		if parseErr != nil {
			continue
		}
		if input == "2006" {
			text = parsed.Format("2006")
			return text, err
		}
		text = parsed.Format(layout)
		return text, err
	}

	err = errors.Errorf("date directive: cannot parse %q (expected YYYY, YYYY-MM or YYYY-MM-DD)", value)
	return text, err
}

// FormatScalar renders primitive JSON values as text. Maps and lists are rejected.
func FormatScalar(value any) (text string, ok bool) {
	ok = true
	switch typed := value.(type) {
	case nil:
		text = ""
	case string:
		text = typed
	case bool:
		text = strconv.FormatBool(typed)
	case float64:
		text = strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		text = strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		text = fmt.Sprint(typed)
	case json.Number:
		text = typed.String()
	case Formatted:
		text, ok = FormatScalar(typed.Value)
	default:
		ok = false
	}
	return text, ok
}
