package docx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

const (
	relHyperlink   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	nsRelations    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	linkIDPrefix   = "rIdCvLink"
	hyperlinkStyle = "Hyperlink"
)

//nolint:gochecknoglobals // Compiled once
var runStylePattern = regexp.MustCompile(`<w:rStyle\b[^>]*/>`)

// relationship is an external hyperlink target registered while rendering a part.
type relationship struct {
	id     string
	target string
}

// linkSet hands out relationship ids for hyperlink targets, one per distinct target.
type linkSet struct {
	taken    map[string]bool
	byTarget map[string]string
	added    []relationship
	next     int
}

func newLinkSet(existing []string) (links *linkSet) {
	links = &linkSet{
		taken:    make(map[string]bool, len(existing)),
		byTarget: make(map[string]string),
	}
	for _, id := range existing {
		links.taken[id] = true
	}
	return links
}

func (l *linkSet) id(target string) (id string) {
	if id, ok := l.byTarget[target]; ok {
		return id
	}

	for {
		l.next++
		id = fmt.Sprintf("%s%d", linkIDPrefix, l.next)
		if !l.taken[id] {
			break
		}
	}

	l.taken[id] = true
	l.byTarget[target] = id
	l.added = append(l.added, relationship{id: id, target: target})
	return id
}

// renderer writes one part.
type renderer struct {
	template string
	// declareNS is set when the part root does not bind the r: prefix.
	declareNS bool
	links     *linkSet
	out       strings.Builder
}

func (r *renderer) render(nodes []node, scopes []any) (err error) {
	for _, n := range nodes {
		switch n.tok.kind {
		case tokText:
			r.out.WriteString(n.tok.open)
			r.out.WriteString(n.tok.body)
			r.out.WriteString("</" + elemText + ">")
		case tokTag:
			if n.tok.tag.opensSection() {
				err = r.section(n, scopes)
			} else {
				err = r.value(n.tok, scopes)
			}
			if err != nil {
				return err
			}
		default:
			r.out.WriteString(n.tok.raw)
		}
	}

	return err
}

func (r *renderer) section(n node, scopes []any) (err error) {
	tag := n.tok.tag

	value, found, err := r.lookup(tag, scopes)
	if err != nil {
		return err
	}

	if tag.mark == markInverted {
		if !found || falsy(value) {
			err = r.render(n.children, scopes)
		}
		return err
	}

	if !found || value == nil {
		return err
	}

	var directive *view.Directive
	if formatted, ok := value.(view.Formatted); ok {
		value = formatted.Value
		if formatted.Directive.IsLink() {
			directive = &formatted.Directive
		}
	}

	list, ok := value.([]any)
	if !ok {
		err = r.bindingError(tag, fmt.Sprintf("section is bound to %s, not a list", describe(value)))
		return err
	}

	for _, element := range list {
		if directive != nil {
			element = view.Formatted{Value: element, Directive: *directive}
		}
		inner := append(scopes[:len(scopes):len(scopes)], element)
		err = r.render(n.children, inner)
		if err != nil {
			return err
		}
	}

	return err
}

func (r *renderer) value(tok token, scopes []any) (err error) {
	tag := tok.tag

	value, found, err := r.lookup(tag, scopes)
	if err != nil {
		return err
	}

	if !found || blank(value) {
		if tag.hasFallback {
			r.text(tag.fallback)
		}
		return err
	}

	switch typed := value.(type) {
	case view.Formatted:
		if typed.Directive.IsLink() {
			var link view.Link
			link, err = typed.Link()
			if err != nil {
				err = r.bindingError(tag, err.Error())
				return err
			}
			r.hyperlink(tok.runProps, link)
			return err
		}

		var text string
		text, err = typed.Text()
		if err != nil {
			err = r.bindingError(tag, err.Error())
			return err
		}
		r.text(text)
	case map[string]any:
		err = r.bindingError(tag, "value is bound to an object; name one of its fields")
	case []any:
		err = r.bindingError(tag, "value is bound to a list; wrap it in a {{#"+tag.path+"}} section")
	default:
		text, ok := view.FormatScalar(typed)
		if !ok {
			err = r.bindingError(tag, fmt.Sprintf("cannot render %T", typed))
			return err
		}
		r.text(text)
	}

	return err
}

// lookup resolves a tag path against the innermost scope that holds its first segment.
func (r *renderer) lookup(tag *insertion, scopes []any) (value any, found bool, err error) {
	if tag.path == "." {
		value = scopes[len(scopes)-1]
		found = true
		return value, found, err
	}

	segments := strings.Split(tag.path, ".")
	for s := len(scopes) - 1; s >= 0; s-- {
		object, ok := unwrap(scopes[s]).(map[string]any)
		if !ok {
			continue
		}

		node, ok := object[segments[0]]
		if !ok {
			continue
		}

		for _, segment := range segments[1:] {
			switch typed := unwrap(node).(type) {
			case map[string]any:
				node, ok = typed[segment]
				if !ok {
					return nil, false, err
				}
			case []any:
				err = r.bindingError(tag, "path walks through a list; use a section to repeat it")
				return nil, false, err
			default:
				return nil, false, err
			}
		}

		value = node
		found = true
		return value, found, err
	}

	return value, found, err
}

// text writes plain text as one or more w:t elements, turning tabs and line breaks into their run content.
func (r *renderer) text(s string) {
	if s == "" {
		return
	}

	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			r.out.WriteString("<w:br/>")
		}
		for j, part := range strings.Split(line, "\t") {
			if j > 0 {
				r.out.WriteString("<w:tab/>")
			}
			if part == "" {
				continue
			}
			r.out.WriteString(`<w:t xml:space="preserve">`)
			r.out.WriteString(escape(part))
			r.out.WriteString("</w:t>")
		}
	}
}

// hyperlink closes the current run, writes a native hyperlink and reopens a run with the same properties.
func (r *renderer) hyperlink(runProps string, link view.Link) {
	id := r.links.id(link.Target)

	r.out.WriteString("</w:r><w:hyperlink")
	if r.declareNS {
		r.out.WriteString(` xmlns:r="` + nsRelations + `"`)
	}
	r.out.WriteString(` r:id="` + id + `" w:history="1"><w:r><w:rPr><w:rStyle w:val="` + hyperlinkStyle + `"/>`)
	r.out.WriteString(innerRunProps(runProps))
	r.out.WriteString("</w:rPr>")
	r.text(link.Display)
	r.out.WriteString("</w:r></w:hyperlink><w:r>")
	r.out.WriteString(runProps)
}

func (r *renderer) bindingError(tag *insertion, reason string) (err error) {
	err = &binder.TemplateBindingError{Template: r.template, InsertionPoint: tag.label(), Reason: reason}
	return err
}

// innerRunProps strips the w:rPr wrapper and any character style so the hyperlink style can lead.
func innerRunProps(runProps string) (inner string) {
	if runProps == "" {
		return inner
	}

	start := strings.IndexByte(runProps, '>')
	end := strings.LastIndex(runProps, "</"+elemRunProps+">")
	if start < 0 || end <= start {
		return inner
	}

	inner = runStylePattern.ReplaceAllString(runProps[start+1:end], "")
	return inner
}

func unwrap(value any) (inner any) {
	inner = value
	if formatted, ok := value.(view.Formatted); ok {
		inner = formatted.Value
	}
	return inner
}

func blank(value any) (ok bool) {
	switch typed := unwrap(value).(type) {
	case nil:
		ok = true
	case string:
		ok = typed == ""
	}
	return ok
}

func falsy(value any) (ok bool) {
	switch typed := unwrap(value).(type) {
	case nil:
		ok = true
	case bool:
		ok = !typed
	case string:
		ok = typed == ""
	case []any:
		ok = len(typed) == 0
	}
	return ok
}

func describe(value any) (desc string) {
	switch value.(type) {
	case map[string]any:
		desc = "an object"
	case string:
		desc = "a string"
	case bool:
		desc = "a boolean"
	case float64, int, int64:
		desc = "a number"
	default:
		desc = fmt.Sprintf("%T", value)
	}
	return desc
}
