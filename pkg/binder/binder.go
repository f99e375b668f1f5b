// Package binder defines the contract between filtered views and output templates,
// the rendered document value, and the template store shared by every render.
package binder

import (
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

// Format names an output document format.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
)

// Extension returns the file extension documents of this format are written with.
func (f Format) Extension() (ext string) {
	switch f {
	case FormatDOCX:
		ext = ".docx"
	case FormatMarkdown:
		ext = ".md"
	}
	return ext
}

// Template is a parsed, read-only template. Implementations are safe for concurrent binds.
type Template interface {
	Name() string
	Format() Format
}

// Binder merges views into templates of one format.
type Binder interface {
	Format() Format
	// Extensions lists the template file extensions the binder parses, lower case with the dot.
	Extensions() []string
	Parse(name string, data []byte) (Template, error)
	Bind(v view.View, tpl Template) (Document, error)
}

// Document is one rendered artifact. Its content cannot be changed after creation.
type Document struct {
	Profile  string
	Template string
	Format   Format
	data     []byte
}

// NewDocument copies data into a new document.
func NewDocument(profileID, template string, format Format, data []byte) (doc Document) {
	doc = Document{
		Profile:  profileID,
		Template: template,
		Format:   format,
		data:     append([]byte(nil), data...),
	}
	return doc
}

// Bytes returns a copy of the document content.
func (d Document) Bytes() (data []byte) {
	data = append([]byte(nil), d.data...)
	return data
}

// Size is the content length in bytes.
func (d Document) Size() (size int) {
	size = len(d.data)
	return size
}

// Extension is the file extension for the document format.
func (d Document) Extension() (ext string) {
	ext = d.Format.Extension()
	return ext
}
