// Package markdown binds filtered views into pongo2 (Django-syntax) Markdown templates.
// Hyperlink and mailto values render as [display](target); other directives render as text.
package markdown

import (
	"os"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

//nolint:gochecknoglobals // pongo2 keeps autoescape and filters process-wide
var setup sync.Once

// Binder renders views into Markdown templates.
type Binder struct {
	set *pongo2.TemplateSet
}

// Template is a compiled pongo2 template.
type Template struct {
	name     string
	compiled *pongo2.Template
}

// Name implements binder.Template.
func (t *Template) Name() (name string) {
	name = t.name
	return name
}

// Format implements binder.Template.
func (t *Template) Format() (format binder.Format) {
	format = binder.FormatMarkdown
	return format
}

// New returns a Markdown binder. {% include %} and {% extends %} resolve against baseDir when it exists,
// otherwise against the working directory.
func New(baseDir string) (b *Binder, err error) {
	setup.Do(func() {
		pongo2.SetAutoescape(false)
		if !pongo2.FilterExists("trim") {
			_ = pongo2.RegisterFilter("trim", filterTrim)
		}
		if !pongo2.FilterExists("mdescape") {
			_ = pongo2.RegisterFilter("mdescape", filterEscape)
		}
	})

	if info, statErr := os.Stat(baseDir); statErr != nil || !info.IsDir() {
		baseDir = ""
	}

	loader, err := pongo2.NewLocalFileSystemLoader(baseDir)
	if err != nil {
		err = errors.Wrapf(err, "failed to create template loader for %s", baseDir)
		return b, err
	}

	b = &Binder{set: pongo2.NewSet("cvgen-markdown", loader)}
	return b, err
}

// Format implements binder.Binder.
func (b *Binder) Format() (format binder.Format) {
	format = binder.FormatMarkdown
	return format
}

// Extensions implements binder.Binder.
func (b *Binder) Extensions() (exts []string) {
	exts = []string{".md", ".markdown", ".tpl"}
	return exts
}

// Parse compiles template source.
func (b *Binder) Parse(name string, data []byte) (tpl binder.Template, err error) {
	compiled, err := b.set.FromBytes(data)
	if err != nil {
		err = &binder.TemplateBindingError{Template: name, Reason: err.Error()}
		return tpl, err
	}

	tpl = &Template{name: name, compiled: compiled}
	return tpl, err
}

// Bind executes the template against the view. Directives are resolved before execution.
func (b *Binder) Bind(v view.View, tpl binder.Template) (doc binder.Document, err error) {
	t, ok := tpl.(*Template)
	if !ok {
		err = errors.Errorf("markdown binder cannot bind %T templates", tpl)
		return doc, err
	}

	resolved, err := resolve(t.name, "", v.Root)
	if err != nil {
		return doc, err
	}

	ctx := pongo2.Context{}
	if root, isMap := resolved.(map[string]any); isMap {
		for key, value := range root {
			ctx[key] = value
		}
	}
	ctx["profile"] = v.Profile

	out, err := t.compiled.Execute(ctx)
	if err != nil {
		err = &binder.TemplateBindingError{Template: t.name, Reason: err.Error()}
		return doc, err
	}

	doc = binder.NewDocument(v.Profile, t.name, binder.FormatMarkdown, []byte(out))
	return doc, err
}

// resolve copies the view tree, replacing Formatted values with their Markdown rendering.
func resolve(template, path string, node any) (out any, err error) {
	switch typed := node.(type) {
	case view.Formatted:
		out, err = resolveFormatted(template, path, typed)
		return out, err
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, value := range typed {
			copied[key], err = resolve(template, join(path, key), value)
			if err != nil {
				return out, err
			}
		}
		out = copied
	case []any:
		copied := make([]any, len(typed))
		for i, element := range typed {
			copied[i], err = resolve(template, path, element)
			if err != nil {
				return out, err
			}
		}
		out = copied
	default:
		out = node
	}

	return out, err
}

func resolveFormatted(template, path string, f view.Formatted) (out any, err error) {
	if list, isList := f.Value.([]any); isList && f.Directive.Type != view.KindJoin {
		items := make([]any, len(list))
		for i, element := range list {
			items[i], err = resolveFormatted(template, path, view.Formatted{Value: element, Directive: f.Directive})
			if err != nil {
				return out, err
			}
		}
		out = items
		return out, err
	}

	if f.Directive.IsLink() {
		var link view.Link
		link, err = f.Link()
		if err != nil {
			err = &binder.TemplateBindingError{Template: template, InsertionPoint: path, Reason: err.Error()}
			return out, err
		}
		out = "[" + escapeLinkText(link.Display) + "](" + escapeLinkTarget(link.Target) + ")"
		return out, err
	}

	text, err := f.Text()
	if err != nil {
		err = &binder.TemplateBindingError{Template: template, InsertionPoint: path, Reason: err.Error()}
		return out, err
	}

	out = text
	return out, err
}

func join(prefix, key string) (path string) {
	path = key
	if prefix != "" {
		path = prefix + "." + key
	}
	return path
}

//nolint:gochecknoglobals // Replacer tables
var (
	linkTextEscaper   = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	linkTargetEscaper = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")
	markdownEscaper   = strings.NewReplacer(
		`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`,
		"[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "|", `\|`,
	)
)

func escapeLinkText(text string) (escaped string) {
	escaped = linkTextEscaper.Replace(text)
	return escaped
}

func escapeLinkTarget(target string) (escaped string) {
	escaped = linkTargetEscaper.Replace(target)
	return escaped
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (out *pongo2.Value, err *pongo2.Error) {
	out = pongo2.AsValue(strings.TrimSpace(in.String()))
	return out, err
}

// filterEscape escapes Markdown control characters in free text.
func filterEscape(in *pongo2.Value, _ *pongo2.Value) (out *pongo2.Value, err *pongo2.Error) {
	out = pongo2.AsValue(markdownEscaper.Replace(in.String()))
	return out, err
}
