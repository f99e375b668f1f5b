// Package docx binds filtered views into Word (.docx) templates.
//
// Templates carry insertion points in their document, header and footer text:
//
//	{{basics.name}}                 value
//	{{basics.phone | n/a}}          value with a template fallback
//	{{#work}} ... {{/work}}         repeated once per list element
//	{{^work}} ... {{/work}}         rendered only when the list is empty or absent
//	{{.}}                           the current list element
//
// Tags may be split across runs by Word's editor. A paragraph holding only a section marker is
// removed from the output. Hyperlink and mailto directives become native hyperlinks.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

const mainPart = "word/document.xml"

//nolint:gochecknoglobals // Compiled once
var (
	partPattern  = regexp.MustCompile(`^word/(document|header[0-9]*|footer[0-9]*)\.xml$`)
	relIDPattern = regexp.MustCompile(`\bId="([^"]*)"`)

	// zip entries without a modification time are stamped with the DOS epoch so output stays reproducible
	dosEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Binder renders views into .docx templates.
type Binder struct{}

// New returns a DOCX binder.
func New() (b *Binder) {
	b = &Binder{}
	return b
}

// Format implements binder.Binder.
func (b *Binder) Format() (format binder.Format) {
	format = binder.FormatDOCX
	return format
}

// Extensions implements binder.Binder.
func (b *Binder) Extensions() (exts []string) {
	exts = []string{".docx"}
	return exts
}

// Template is a parsed .docx archive. It is never modified by Bind.
type Template struct {
	name    string
	entries []entry
	parts   map[string][]node
}

type entry struct {
	header zip.FileHeader
	data   []byte
}

// Name implements binder.Template.
func (t *Template) Name() (name string) {
	name = t.name
	return name
}

// Format implements binder.Template.
func (t *Template) Format() (format binder.Format) {
	format = binder.FormatDOCX
	return format
}

// Parts lists the archive parts that carry insertion points, sorted.
func (t *Template) Parts() (parts []string) {
	for name := range t.parts {
		parts = append(parts, name)
	}
	sort.Strings(parts)
	return parts
}

// InsertionPoints lists every tag in the template as written ("#work", "position", "basics.name"), sorted and unique.
func (t *Template) InsertionPoints() (points []string) {
	seen := make(map[string]bool)

	var walk func(nodes []node)
	walk = func(nodes []node) {
		for _, n := range nodes {
			if n.tok.kind == tokTag {
				seen[n.tok.tag.label()] = true
			}
			walk(n.children)
		}
	}

	for _, nodes := range t.parts {
		walk(nodes)
	}

	for point := range seen {
		points = append(points, point)
	}
	sort.Strings(points)
	return points
}

// Parse reads a .docx archive and compiles the insertion points of its document, header and footer parts.
func (b *Binder) Parse(name string, data []byte) (tpl binder.Template, err error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		err = &binder.TemplateNotFoundError{Template: name, Err: errors.Wrap(err, "not a DOCX archive")}
		return tpl, err
	}

	t := &Template{
		name:  name,
		parts: make(map[string][]node),
	}

	for _, file := range reader.File {
		var content []byte
		content, err = readEntry(file)
		if err != nil {
			err = &binder.TemplateNotFoundError{Template: name, Err: err}
			return tpl, err
		}

		t.entries = append(t.entries, entry{header: file.FileHeader, data: content})

		if !partPattern.MatchString(file.Name) {
			continue
		}

		var nodes []node
		nodes, err = parsePart(name, file.Name, string(content))
		if err != nil {
			return tpl, errors.Wrapf(err, "%s", file.Name)
		}
		t.parts[file.Name] = nodes
	}

	if _, ok := t.parts[mainPart]; !ok {
		err = &binder.TemplateNotFoundError{Template: name, Err: errors.Errorf("archive has no %s", mainPart)}
		return tpl, err
	}

	tpl = t
	return tpl, err
}

func readEntry(file *zip.File) (data []byte, err error) {
	rc, err := file.Open()
	if err != nil {
		err = errors.Wrapf(err, "failed to open %s", file.Name)
		return data, err
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		err = errors.Wrapf(err, "failed to read %s", file.Name)
		return data, err
	}

	return data, err
}

// Bind renders the view into a new archive. Entry order and timestamps follow the template, so equal
// inputs give byte-identical output.
func (b *Binder) Bind(v view.View, tpl binder.Template) (doc binder.Document, err error) {
	t, ok := tpl.(*Template)
	if !ok {
		err = errors.Errorf("docx binder cannot bind %T templates", tpl)
		return doc, err
	}

	index := make(map[string]int, len(t.entries))
	for i, e := range t.entries {
		index[e.header.Name] = i
	}

	rendered := make(map[string][]byte)
	for _, partName := range t.Parts() {
		source := t.entries[index[partName]].data
		relsName := relsPath(partName)

		var existing []string
		if i, found := index[relsName]; found {
			existing = relationshipIDs(t.entries[i].data)
		}

		r := &renderer{
			template:  t.name,
			declareNS: !bytes.Contains(source, []byte(`xmlns:r="`+nsRelations+`"`)),
			links:     newLinkSet(existing),
		}

		err = r.render(t.parts[partName], []any{v.Root})
		if err != nil {
			return doc, err
		}

		var filled string
		filled, err = fillEmptyContainers(r.out.String())
		if err != nil {
			err = &binder.TemplateBindingError{Template: t.name, InsertionPoint: partName, Reason: err.Error()}
			return doc, err
		}
		rendered[partName] = []byte(filled)

		if len(r.links.added) == 0 {
			continue
		}

		var base []byte
		if i, found := index[relsName]; found {
			base = t.entries[i].data
		}

		rendered[relsName], err = addRelationships(base, r.links.added)
		if err != nil {
			err = &binder.TemplateBindingError{Template: t.name, Reason: errors.Wrapf(err, "%s", relsName).Error()}
			return doc, err
		}
	}

	entries := make([]entry, 0, len(t.entries)+len(rendered))
	for _, e := range t.entries {
		if data, changed := rendered[e.header.Name]; changed {
			e.data = data
		}
		entries = append(entries, e)
	}

	var created []string
	for name := range rendered {
		if _, found := index[name]; !found {
			created = append(created, name)
		}
	}
	sort.Strings(created)
	for _, name := range created {
		entries = append(entries, entry{
			header: zip.FileHeader{Name: name, Method: zip.Deflate},
			data:   rendered[name],
		})
	}

	var data []byte
	data, err = writeArchive(entries)
	if err != nil {
		return doc, err
	}

	doc = binder.NewDocument(v.Profile, t.name, binder.FormatDOCX, data)
	return doc, err
}

func writeArchive(entries []entry) (data []byte, err error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	for _, e := range entries {
		header := zip.FileHeader{
			Name:     e.header.Name,
			Comment:  e.header.Comment,
			Method:   e.header.Method,
			Modified: e.header.Modified,
		}
		if header.Method != zip.Store {
			header.Method = zip.Deflate
		}
		if header.Modified.IsZero() {
			header.Modified = dosEpoch
		}

		var w io.Writer
		w, err = writer.CreateHeader(&header)
		if err != nil {
			err = errors.Wrapf(err, "failed to add %s", e.header.Name)
			return data, err
		}

		_, err = w.Write(e.data)
		if err != nil {
			err = errors.Wrapf(err, "failed to write %s", e.header.Name)
			return data, err
		}
	}

	err = writer.Close()
	if err != nil {
		err = errors.Wrap(err, "failed to finish archive")
		return data, err
	}

	data = buf.Bytes()
	return data, err
}

// relsPath maps word/document.xml to word/_rels/document.xml.rels.
func relsPath(part string) (rels string) {
	rels = path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	return rels
}

func relationshipIDs(rels []byte) (ids []string) {
	for _, match := range relIDPattern.FindAllSubmatch(rels, -1) {
		ids = append(ids, string(match[1]))
	}
	return ids
}

// addRelationships appends external hyperlink relationships, creating the part when base is empty.
func addRelationships(base []byte, added []relationship) (out []byte, err error) {
	var entries strings.Builder
	for _, rel := range added {
		entries.WriteString(`<Relationship Id="` + rel.id + `" Type="` + relHyperlink + `" Target="` + escape(rel.target) + `" TargetMode="External"/>`)
	}

	if len(base) == 0 {
		out = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			entries.String() + `</Relationships>`)
		return out, err
	}

	source := string(base)
	closeAt := strings.LastIndex(source, "</Relationships>")
	if closeAt < 0 {
		err = errors.New("relationships part has no closing </Relationships>")
		return out, err
	}

	out = []byte(source[:closeAt] + entries.String() + source[closeAt:])
	return out, err
}
