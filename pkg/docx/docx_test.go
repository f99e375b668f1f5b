package docx

import (
	"archive/zip"
	"bytes"
	"html"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

const (
	documentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body>`
	documentClose = `<w:sectPr/></w:body></w:document>`

	headerOpen  = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" + `<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`
	headerClose = `</w:hdr>`

	contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
		`</Types>`
	packageRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
		`</Relationships>`
	documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
		`</Relationships>`
)

//nolint:gochecknoglobals // Test helper
var textPattern = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

func para(runs ...string) (xml string) {
	xml = "<w:p>" + strings.Join(runs, "") + "</w:p>"
	return xml
}

func run(text string) (xml string) {
	xml = `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r>`
	return xml
}

func styledRun(props, text string) (xml string) {
	xml = `<w:r><w:rPr>` + props + `</w:rPr><w:t>` + text + `</w:t></w:r>`
	return xml
}

type part struct {
	name    string
	content string
}

func buildArchive(t *testing.T, parts ...part) (data []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		f, err := w.Create(p.name)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", p.name, err)
		}
		_, err = f.Write([]byte(p.content))
		if err != nil {
			t.Fatalf("Failed to write %s: %v", p.name, err)
		}
	}

	err := w.Close()
	if err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}

	data = buf.Bytes()
	return data
}

func buildTemplate(t *testing.T, body string, extra ...part) (data []byte) {
	t.Helper()

	parts := []part{
		{name: "[Content_Types].xml", content: contentTypes},
		{name: "_rels/.rels", content: packageRels},
		{name: "word/document.xml", content: documentOpen + body + documentClose},
		{name: "word/_rels/document.xml.rels", content: documentRels},
	}
	parts = append(parts, extra...)

	data = buildArchive(t, parts...)
	return data
}

func parse(t *testing.T, data []byte) (tpl binder.Template) {
	t.Helper()

	tpl, err := New().Parse("test.docx", data)
	if err != nil {
		t.Fatalf("Failed to parse template: %v", err)
	}
	return tpl
}

func bind(t *testing.T, body string, root map[string]any) (parts map[string]string) {
	t.Helper()

	tpl := parse(t, buildTemplate(t, body))
	doc, err := New().Bind(view.View{Profile: "test", Root: root}, tpl)
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}

	parts, _ = readArchive(t, doc.Bytes())
	return parts
}

func readArchive(t *testing.T, data []byte) (parts map[string]string, order []string) {
	t.Helper()

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Output is not a zip archive: %v", err)
	}

	parts = make(map[string]string)
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f.Name, err)
		}
		parts[f.Name] = string(content)
		order = append(order, f.Name)
	}

	return parts, order
}

// plainText concatenates every w:t in the part.
func plainText(xml string) (text string) {
	var b strings.Builder
	for _, match := range textPattern.FindAllStringSubmatch(xml, -1) {
		b.WriteString(html.UnescapeString(match[1]))
	}
	text = b.String()
	return text
}

func TestBindMinimalProfile(t *testing.T) {
	body := para(run("Name: {{contact.name}}")) + para(run("Email: {{contact.email}}"))
	root := map[string]any{"contact": map[string]any{"name": "Jane Doe"}}

	document := bind(t, body, root)["word/document.xml"]

	if got := plainText(document); got != "Name: Jane DoeEmail: " {
		t.Errorf("Unexpected text %q", got)
	}
	if strings.Contains(document, "{{") {
		t.Errorf("Insertion points left in output:\n%s", document)
	}
}

func TestBindTagSplitAcrossRuns(t *testing.T) {
	body := para(run("Hello {{con"), styledRun("<w:b/>", "tact.na"), run("me}}!"))
	root := map[string]any{"contact": map[string]any{"name": "Jane Doe"}}

	document := bind(t, body, root)["word/document.xml"]

	if got := plainText(document); got != "Hello Jane Doe!" {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestBindValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		root map[string]any
		want string
	}{
		{
			name: "fallback for missing field",
			body: para(run("Phone: {{contact.phone | N/A}}")),
			root: map[string]any{"contact": map[string]any{}},
			want: "Phone: N/A",
		},
		{
			name: "missing field is blank",
			body: para(run("Fax: {{contact.fax}}.")),
			root: map[string]any{},
			want: "Fax: .",
		},
		{
			name: "number and bool",
			body: para(run("{{n}} {{b}}")),
			root: map[string]any{"n": 3.0, "b": true},
			want: "3 true",
		},
		{
			name: "escaping",
			body: para(run("{{v}}")),
			root: map[string]any{"v": "R&D <lab> \"x\""},
			want: "R&D <lab> \"x\"",
		},
		{
			name: "text directive",
			body: para(run("{{v}}")),
			root: map[string]any{"v": view.Formatted{Value: "2019-03", Directive: view.Directive{Type: view.KindDate}}},
			want: "Mar 2019",
		},
		{
			name: "join directive",
			body: para(run("{{v}}")),
			root: map[string]any{"v": view.Formatted{Value: []any{"Go", "SQL"}, Directive: view.Directive{Type: view.KindJoin}}},
			want: "Go, SQL",
		},
		{
			name: "escaped template text is kept",
			body: para(run("Q&amp;A {{v}}")),
			root: map[string]any{"v": "ok"},
			want: "Q&A ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			document := bind(t, tt.body, tt.root)["word/document.xml"]
			if got := plainText(document); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBindLineBreaksAndTabs(t *testing.T) {
	document := bind(t, para(run("{{v}}")), map[string]any{"v": "a\nb\tc"})["word/document.xml"]

	want := `<w:t xml:space="preserve">a</w:t><w:br/><w:t xml:space="preserve">b</w:t><w:tab/><w:t xml:space="preserve">c</w:t>`
	if !strings.Contains(document, want) {
		t.Errorf("Expected %s in output:\n%s", want, document)
	}
}

func TestBindBlockSection(t *testing.T) {
	body := para(run("Experience")) +
		para(run("{{#work}}")) +
		para(run("{{position}} at {{company}}")) +
		para(run("{{/work}}")) +
		para(run("End"))
	root := map[string]any{"work": []any{
		map[string]any{"company": "Acme", "position": "Lead"},
		map[string]any{"company": "Initech", "position": "Engineer"},
	}}

	document := bind(t, body, root)["word/document.xml"]

	if got := plainText(document); got != "ExperienceLead at AcmeEngineer at InitechEnd" {
		t.Errorf("Unexpected text %q", got)
	}

	if got := strings.Count(document, "<w:p>"); got != 4 {
		t.Errorf("Expected 4 paragraphs (marker paragraphs removed), got %d:\n%s", got, document)
	}
}

func TestBindSectionScopes(t *testing.T) {
	body := para(run("{{#work}}")) +
		para(run("{{basics.name}}: {{position}}{{#highlights}} [{{.}}]{{/highlights}}")) +
		para(run("{{/work}}"))
	root := map[string]any{
		"basics": map[string]any{"name": "Jane"},
		"work": []any{
			map[string]any{"position": "Lead", "highlights": []any{"a", "b"}},
			map[string]any{"position": "Engineer"},
		},
	}

	document := bind(t, body, root)["word/document.xml"]

	if got := plainText(document); got != "Jane: Lead [a] [b]Jane: Engineer" {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestBindInlineSection(t *testing.T) {
	body := para(run("Skills: {{#skills}}{{.}}, {{/skills}}"))
	document := bind(t, body, map[string]any{"skills": []any{"Go", "SQL"}})["word/document.xml"]

	if got := plainText(document); got != "Skills: Go, SQL, " {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestBindInvertedSection(t *testing.T) {
	body := para(run("{{^awards}}No awards{{/awards}}{{#awards}}{{title}}{{/awards}}"))

	tests := []struct {
		name string
		root map[string]any
		want string
	}{
		{name: "absent", root: map[string]any{}, want: "No awards"},
		{name: "empty", root: map[string]any{"awards": []any{}}, want: "No awards"},
		{name: "present", root: map[string]any{"awards": []any{map[string]any{"title": "Best"}}}, want: "Best"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			document := bind(t, body, tt.root)["word/document.xml"]
			if got := plainText(document); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBindHyperlink(t *testing.T) {
	body := para(run("Profile: {{basics.linkedin}}"))
	root := map[string]any{"basics": map[string]any{
		"linkedin": view.Formatted{
			Value:     map[string]any{"display": "LinkedIn", "target": "https://linkedin.com/in/jane"},
			Directive: view.Directive{Type: view.KindHyperlink},
		},
	}}

	parts := bind(t, body, root)
	document := parts["word/document.xml"]

	want := `<w:hyperlink r:id="rIdCvLink1" w:history="1"><w:r><w:rPr><w:rStyle w:val="Hyperlink"/></w:rPr>` +
		`<w:t xml:space="preserve">LinkedIn</w:t></w:r></w:hyperlink>`
	if !strings.Contains(document, want) {
		t.Errorf("Expected native hyperlink in output:\n%s", document)
	}
	if strings.Contains(document, "linkedin.com") {
		t.Error("Raw URL must not appear in the document text")
	}

	rels := parts["word/_rels/document.xml.rels"]
	wantRel := `<Relationship Id="rIdCvLink1" Type="` + relHyperlink + `" Target="https://linkedin.com/in/jane" TargetMode="External"/>`
	if !strings.Contains(rels, wantRel) {
		t.Errorf("Expected relationship in rels:\n%s", rels)
	}
	if !strings.Contains(rels, `Id="rId1"`) {
		t.Error("Existing relationships must be kept")
	}
}

func TestBindHyperlinkKeepsRunProperties(t *testing.T) {
	body := para(styledRun(`<w:rStyle w:val="Strong"/><w:b/>`, "Mail: {{email}} now"))
	root := map[string]any{"email": view.Formatted{Value: "jane@x.com", Directive: view.Directive{Type: view.KindMailto}}}

	parts := bind(t, body, root)
	document := parts["word/document.xml"]

	if !strings.Contains(document, `<w:rPr><w:rStyle w:val="Hyperlink"/><w:b/></w:rPr><w:t xml:space="preserve">jane@x.com</w:t>`) {
		t.Errorf("Expected hyperlink run to carry the run properties:\n%s", document)
	}
	if !strings.Contains(document, `</w:hyperlink><w:r><w:rPr><w:rStyle w:val="Strong"/><w:b/></w:rPr><w:t xml:space="preserve"> now</w:t>`) {
		t.Errorf("Expected the run to reopen after the hyperlink:\n%s", document)
	}
	if !strings.Contains(parts["word/_rels/document.xml.rels"], `Target="mailto:jane@x.com"`) {
		t.Error("Expected mailto relationship")
	}
}

func TestBindHyperlinkList(t *testing.T) {
	body := para(run("{{#profiles}}{{.}} {{/profiles}}"))
	root := map[string]any{"profiles": view.Formatted{
		Value: []any{
			map[string]any{"network": "GitHub", "url": "https://github.com/jane"},
			map[string]any{"network": "LinkedIn", "url": "https://linkedin.com/in/jane"},
			map[string]any{"network": "GitHub again", "url": "https://github.com/jane"},
		},
		Directive: view.Directive{Type: view.KindHyperlink},
	}}

	parts := bind(t, body, root)

	if got := strings.Count(parts["word/document.xml"], "<w:hyperlink "); got != 3 {
		t.Errorf("Expected 3 hyperlinks, got %d", got)
	}
	if got := strings.Count(parts["word/_rels/document.xml.rels"], "TargetMode=\"External\""); got != 2 {
		t.Errorf("Expected 2 distinct relationships, got %d", got)
	}
}

func TestBindHyperlinkInHeaderCreatesRelationships(t *testing.T) {
	header := part{name: "word/header1.xml", content: headerOpen + para(run("{{site}}")) + headerClose}
	tpl := parse(t, buildTemplate(t, para(run("body")), header))

	root := map[string]any{"site": view.Formatted{Value: "https://jane.dev", Directive: view.Directive{Type: view.KindHyperlink}}}
	doc, err := New().Bind(view.View{Root: root}, tpl)
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}

	parts, order := readArchive(t, doc.Bytes())

	if !strings.Contains(parts["word/header1.xml"], `<w:hyperlink xmlns:r="`+nsRelations+`" r:id="rIdCvLink1"`) {
		t.Errorf("Expected hyperlink declaring the r namespace:\n%s", parts["word/header1.xml"])
	}

	if order[len(order)-1] != "word/_rels/header1.xml.rels" {
		t.Errorf("Expected new rels part at the end, got order %v", order)
	}
	if !strings.Contains(parts["word/_rels/header1.xml.rels"], `Target="https://jane.dev"`) {
		t.Errorf("Unexpected header rels:\n%s", parts["word/_rels/header1.xml.rels"])
	}
}

func TestBindErrors(t *testing.T) {
	root := map[string]any{
		"contact": map[string]any{"name": "Jane"},
		"work":    []any{map[string]any{"position": "Lead"}},
		"link":    view.Formatted{Value: map[string]any{"display": "x"}, Directive: view.Directive{Type: view.KindHyperlink}},
		"when":    view.Formatted{Value: "March", Directive: view.Directive{Type: view.KindDate}},
	}

	tests := []struct {
		name  string
		body  string
		point string
	}{
		{name: "section bound to a string", body: para(run("{{#contact.name}}x{{/contact.name}}")), point: "#contact.name"},
		{name: "section bound to an object", body: para(run("{{#contact}}x{{/contact}}")), point: "#contact"},
		{name: "value bound to an object", body: para(run("{{contact}}")), point: "contact"},
		{name: "value bound to a list", body: para(run("{{work}}")), point: "work"},
		{name: "path through a list", body: para(run("{{work.position}}")), point: "work.position"},
		{name: "link without target", body: para(run("{{link}}")), point: "link"},
		{name: "bad date", body: para(run("{{when}}")), point: "when"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := parse(t, buildTemplate(t, tt.body))
			_, err := New().Bind(view.View{Root: root}, tpl)

			var bindErr *binder.TemplateBindingError
			if !errors.As(err, &bindErr) {
				t.Fatalf("Expected TemplateBindingError, got %v", err)
			}
			if bindErr.InsertionPoint != tt.point || bindErr.Template != "test.docx" {
				t.Errorf("Unexpected error context: %+v", bindErr)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name         string
		data         func(t *testing.T) []byte
		wantNotFound bool
	}{
		{
			name: "unclosed section",
			data: func(t *testing.T) []byte { return buildTemplate(t, para(run("{{#work}}x"))) },
		},
		{
			name: "mismatched close",
			data: func(t *testing.T) []byte { return buildTemplate(t, para(run("{{#work}}x{{/skills}}"))) },
		},
		{
			name: "close without open",
			data: func(t *testing.T) []byte { return buildTemplate(t, para(run("x{{/work}}"))) },
		},
		{
			name: "empty insertion point",
			data: func(t *testing.T) []byte { return buildTemplate(t, para(run("{{ }}"))) },
		},
		{
			name: "marker paragraph closed inline",
			data: func(t *testing.T) []byte {
				return buildTemplate(t, para(run("{{#work}}"))+para(run("{{position}}"))+para(run("end {{/work}}")))
			},
		},
		{
			name: "section leaving a table",
			data: func(t *testing.T) []byte {
				table := "<w:tbl><w:tr><w:tc>" + para(run("a {{#work}}")) + "</w:tc></w:tr></w:tbl>"
				return buildTemplate(t, table+para(run("{{/work}} b")))
			},
		},
		{
			name: "section across table cells",
			data: func(t *testing.T) []byte {
				row := "<w:tbl><w:tr>" +
					"<w:tc>" + para(run("{{#work}}{{company}}")) + "</w:tc>" +
					"<w:tc>" + para(run("{{position}}{{/work}}")) + "</w:tc>" +
					"</w:tr></w:tbl>"
				return buildTemplate(t, row)
			},
		},
		{
			name: "malformed part",
			data: func(t *testing.T) []byte {
				return buildArchive(t, part{name: "word/document.xml", content: "<w:document><w:body></w:document>"})
			},
		},
		{
			name:         "not an archive",
			data:         func(t *testing.T) []byte { return []byte("plain text") },
			wantNotFound: true,
		},
		{
			name: "archive without document",
			data: func(t *testing.T) []byte {
				return buildArchive(t, part{name: "[Content_Types].xml", content: contentTypes})
			},
			wantNotFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Parse("test.docx", tt.data(t))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}

			if tt.wantNotFound {
				var notFound *binder.TemplateNotFoundError
				if !errors.As(err, &notFound) {
					t.Errorf("Expected TemplateNotFoundError, got %v", err)
				}
				return
			}

			var bindErr *binder.TemplateBindingError
			if !errors.As(err, &bindErr) {
				t.Errorf("Expected TemplateBindingError, got %v", err)
			}
		})
	}
}

func TestBindEmptySectionKeepsCellParagraph(t *testing.T) {
	table := "<w:tbl><w:tr><w:tc><w:tcPr/>" +
		para(run("{{#work}}")) +
		para(run("{{company}}")) +
		para(run("{{/work}}")) +
		"</w:tc></w:tr></w:tbl>"

	tests := []struct {
		name string
		root map[string]any
		want string
	}{
		{
			name: "empty list",
			root: map[string]any{"work": []any{}},
			want: "<w:tc><w:tcPr/><w:p/></w:tc>",
		},
		{
			name: "missing list",
			root: map[string]any{},
			want: "<w:tc><w:tcPr/><w:p/></w:tc>",
		},
		{
			name: "one element",
			root: map[string]any{"work": []any{map[string]any{"company": "Acme"}}},
			want: "<w:tc><w:tcPr/><w:p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			document := bind(t, table, tt.root)["word/document.xml"]
			if !strings.Contains(document, tt.want) {
				t.Errorf("Expected %s in output:\n%s", tt.want, document)
			}
			if strings.Contains(document, "<w:tc><w:tcPr/></w:tc>") {
				t.Errorf("Cell left without a paragraph:\n%s", document)
			}
		})
	}
}

func TestBindIsDeterministic(t *testing.T) {
	data := buildTemplate(t, para(run("{{#work}}{{company}} {{/work}}{{site}}")))
	original := append([]byte(nil), data...)
	tpl := parse(t, data)

	v := view.View{Root: map[string]any{
		"work": []any{map[string]any{"company": "Acme"}},
		"site": view.Formatted{Value: "https://jane.dev", Directive: view.Directive{Type: view.KindHyperlink}},
	}}

	first, err := New().Bind(v, tpl)
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	second, err := New().Bind(v, tpl)
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("Binding the same view twice produced different bytes")
	}
	if !bytes.Equal(data, original) {
		t.Error("Template bytes were modified")
	}

	_, firstOrder := readArchive(t, first.Bytes())
	_, templateOrder := readArchive(t, data)
	if diff := cmp.Diff(templateOrder, firstOrder); diff != "" {
		t.Errorf("Entry order changed (-template +output):\n%s", diff)
	}
}

func TestBindDocumentMetadata(t *testing.T) {
	tpl := parse(t, buildTemplate(t, para(run("x"))))

	doc, err := New().Bind(view.View{Profile: "minimal", Root: map[string]any{}}, tpl)
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}

	if doc.Profile != "minimal" || doc.Template != "test.docx" || doc.Format != binder.FormatDOCX || doc.Extension() != ".docx" {
		t.Errorf("Unexpected document metadata: %+v", doc)
	}

	content := doc.Bytes()
	content[0] = 'X'
	if doc.Bytes()[0] == 'X' {
		t.Error("Document bytes must be immutable")
	}
}

func TestInsertionPoints(t *testing.T) {
	tpl := parse(t, buildTemplate(t, para(run("{{basics.name}} {{#work}}{{position | ?}}{{/work}} {{basics.name}}"))))

	want := []string{"#work", "basics.name", "position"}
	if diff := cmp.Diff(want, tpl.(*Template).InsertionPoints()); diff != "" {
		t.Errorf("Unexpected insertion points (-want +got):\n%s", diff)
	}
}
