package docx

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
)

const (
	markSection  byte = '#'
	markInverted byte = '^'
	markClose    byte = '/'
)

//nolint:gochecknoglobals // Compiled once
var (
	tagPattern = regexp.MustCompile(`\{\{\s*([#^/]?)\s*([^{}|]*?)\s*(?:\|\s*([^{}]*?)\s*)?\}\}`)

	// elements a section body may not leave or enter: repeating them would add cells, rows or tables
	structural = map[string]bool{
		"w:tc":          true,
		"w:tr":          true,
		"w:tbl":         true,
		"w:txbxContent": true,
		"w:body":        true,
		"w:hdr":         true,
		"w:ftr":         true,
	}

	// containers that must keep at least one paragraph or table
	blockContainers = map[string]bool{
		"w:tc":          true,
		"w:txbxContent": true,
	}

	// markup that keeps a marker-only paragraph in place because it renders something
	visibleMarkup = map[string]bool{
		"w:drawing":           true,
		"w:pict":              true,
		"w:object":            true,
		"w:sym":               true,
		"mc:AlternateContent": true,
	}
)

// insertion is one {{...}} tag found in template text.
type insertion struct {
	mark        byte
	path        string
	fallback    string
	hasFallback bool
}

func (i *insertion) label() (label string) {
	label = i.path
	if i.mark != 0 {
		label = string(i.mark) + label
	}
	return label
}

func (i *insertion) opensSection() (ok bool) {
	ok = i.mark == markSection || i.mark == markInverted
	return ok
}

func (i *insertion) isMarker() (ok bool) {
	ok = i.mark != 0
	return ok
}

// node is a token, or a section tag with the nodes it repeats.
type node struct {
	tok      token
	children []node
}

// parsePart turns part XML into a render tree.
func parsePart(template, part, src string) (nodes []node, err error) {
	var tokens []token
	tokens, err = tokenize(src)
	if err != nil {
		err = &binder.TemplateBindingError{Template: template, InsertionPoint: part, Reason: err.Error()}
		return nodes, err
	}

	tokens, err = extractTags(template, tokens)
	if err != nil {
		return nodes, err
	}

	tokens = dropMarkerParagraphs(tokens)

	nodes, err = buildTree(template, tokens)
	return nodes, err
}

// extractTags finds insertion points in the text of each paragraph, including tags split across runs,
// and replaces them with tag tokens placed in the run where the tag starts.
func extractTags(template string, tokens []token) (out []token, err error) {
	replacements := make(map[int][]token)
	var paragraphs [][]int

	for i, tok := range tokens {
		switch {
		case tok.kind == tokOpen && tok.name == elemParagraph:
			paragraphs = append(paragraphs, nil)
		case tok.kind == tokClose && tok.name == elemParagraph:
			if len(paragraphs) == 0 {
				continue
			}
			texts := paragraphs[len(paragraphs)-1]
			paragraphs = paragraphs[:len(paragraphs)-1]
			err = splitTags(template, tokens, texts, replacements)
			if err != nil {
				return out, err
			}
		case tok.kind == tokText && len(paragraphs) > 0:
			paragraphs[len(paragraphs)-1] = append(paragraphs[len(paragraphs)-1], i)
		}
	}

	if len(replacements) == 0 {
		out = tokens
		return out, err
	}

	out = make([]token, 0, len(tokens)+len(replacements))
	for i, tok := range tokens {
		if pieces, ok := replacements[i]; ok {
			out = append(out, pieces...)
			continue
		}
		out = append(out, tok)
	}

	return out, err
}

func splitTags(template string, tokens []token, texts []int, replacements map[int][]token) (err error) {
	if len(texts) == 0 {
		return err
	}

	var full strings.Builder
	starts := make([]int, len(texts))
	for k, idx := range texts {
		starts[k] = full.Len()
		full.WriteString(tokens[idx].text)
	}

	text := full.String()
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return err
	}

	tags := make([]*insertion, len(matches))
	for m, match := range matches {
		tag := &insertion{path: text[match[4]:match[5]]}
		if match[3] > match[2] {
			tag.mark = text[match[2]]
		}
		if match[6] >= 0 {
			tag.hasFallback = true
			tag.fallback = text[match[6]:match[7]]
		}
		if tag.path == "" {
			err = &binder.TemplateBindingError{Template: template, InsertionPoint: text[match[0]:match[1]], Reason: "empty insertion point"}
			return err
		}
		if tag.isMarker() && tag.hasFallback {
			err = &binder.TemplateBindingError{Template: template, InsertionPoint: tag.label(), Reason: "section markers take no fallback"}
			return err
		}
		tags[m] = tag
	}

	for k, idx := range texts {
		tok := tokens[idx]
		start, end := starts[k], starts[k]+len(tok.text)

		var pieces []token
		cursor := start
		touched := false
		for m, match := range matches {
			if match[0] >= end || match[1] <= start {
				continue
			}
			touched = true
			if match[0] > cursor {
				pieces = append(pieces, textPiece(tok, text[cursor:match[0]]))
			}
			if match[0] >= start {
				pieces = append(pieces, token{kind: tokTag, runProps: tok.runProps, tag: tags[m]})
			}
			cursor = min(match[1], end)
		}
		if !touched {
			continue
		}
		if cursor < end {
			pieces = append(pieces, textPiece(tok, text[cursor:end]))
		}

		replacements[idx] = pieces
	}

	return err
}

func textPiece(tok token, text string) (piece token) {
	piece = token{
		kind:     tokText,
		open:     `<w:t xml:space="preserve">`,
		text:     text,
		body:     escape(text),
		runProps: tok.runProps,
	}
	return piece
}

func escape(text string) (escaped string) {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(text))
	escaped = buf.String()
	return escaped
}

// dropMarkerParagraphs replaces paragraphs holding only a section marker with the bare marker,
// so block sections leave no empty paragraphs behind.
func dropMarkerParagraphs(tokens []token) (out []token) {
	type paragraph struct {
		start   int
		marker  int
		tags    int
		blocked bool
	}

	type span struct {
		start, end, keep int
	}

	var stack []*paragraph
	var spans []span

	for i, tok := range tokens {
		var top *paragraph
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}

		switch tok.kind {
		case tokOpen, tokEmpty:
			if tok.kind == tokOpen && tok.name == elemParagraph {
				if top != nil {
					top.blocked = true
				}
				stack = append(stack, &paragraph{start: i, marker: -1})
				continue
			}
			if top != nil && visibleMarkup[tok.name] {
				top.blocked = true
			}
		case tokText:
			if top != nil && strings.TrimSpace(tok.text) != "" {
				top.blocked = true
			}
		case tokTag:
			if top == nil {
				continue
			}
			top.tags++
			if tok.tag.isMarker() {
				top.marker = i
			} else {
				top.blocked = true
			}
		case tokClose:
			if tok.name != elemParagraph || top == nil {
				continue
			}
			stack = stack[:len(stack)-1]
			if !top.blocked && top.tags == 1 && top.marker >= 0 {
				spans = append(spans, span{start: top.start, end: i, keep: top.marker})
			}
		}
	}

	if len(spans) == 0 {
		out = tokens
		return out
	}

	out = make([]token, 0, len(tokens))
	next := 0
	for i := 0; i < len(tokens); i++ {
		if next < len(spans) && i == spans[next].start {
			out = append(out, tokens[spans[next].keep])
			i = spans[next].end
			next++
			continue
		}
		out = append(out, tokens[i])
	}

	return out
}

// buildTree nests the tokens between matching section markers under their opening tag.
func buildTree(template string, tokens []token) (nodes []node, err error) {
	type frame struct {
		open     token
		start    int
		children []node
	}

	stack := []*frame{{start: -1}}

	for i, tok := range tokens {
		top := stack[len(stack)-1]

		if tok.kind != tokTag || !tok.tag.isMarker() {
			top.children = append(top.children, node{tok: tok})
			continue
		}

		if tok.tag.opensSection() {
			stack = append(stack, &frame{open: tok, start: i})
			continue
		}

		if len(stack) == 1 {
			err = &binder.TemplateBindingError{Template: template, InsertionPoint: tok.tag.label(), Reason: "closes a section that was never opened"}
			return nodes, err
		}

		if top.open.tag.path != tok.tag.path {
			err = &binder.TemplateBindingError{
				Template:       template,
				InsertionPoint: tok.tag.label(),
				Reason:         "does not match the open section {{" + top.open.tag.label() + "}}",
			}
			return nodes, err
		}

		reason := checkBalance(tokens[top.start+1 : i])
		if reason != "" {
			err = &binder.TemplateBindingError{Template: template, InsertionPoint: top.open.tag.label(), Reason: reason}
			return nodes, err
		}

		stack = stack[:len(stack)-1]
		parent := stack[len(stack)-1]
		parent.children = append(parent.children, node{tok: top.open, children: top.children})
	}

	if len(stack) > 1 {
		open := stack[len(stack)-1].open
		err = &binder.TemplateBindingError{Template: template, InsertionPoint: open.tag.label(), Reason: "section is never closed"}
		return nodes, err
	}

	nodes = stack[0].children
	return nodes, err
}

// checkBalance verifies a section body leaves the element stack as it found it, so repeating it
// keeps the document well formed.
func checkBalance(body []token) (reason string) {
	var opened []string
	var closed []string

	for _, tok := range body {
		switch tok.kind {
		case tokOpen:
			opened = append(opened, tok.name)
		case tokClose:
			if len(opened) == 0 {
				closed = append(closed, tok.name)
				continue
			}
			if opened[len(opened)-1] != tok.name {
				reason = "section body closes <" + tok.name + "> inside <" + opened[len(opened)-1] + ">"
				return reason
			}
			opened = opened[:len(opened)-1]
		}
	}

	for _, name := range append(closed, opened...) {
		if structural[name] {
			reason = "section markers span incompatible document structure (<" + name + "> is entered or left inside the section; keep both markers in the same table cell)"
			return reason
		}
	}

	if len(opened) != len(closed) {
		reason = "section markers span incompatible document structure (place both markers in the same paragraph or in paragraphs of their own)"
		return reason
	}

	for i := range opened {
		if opened[i] != closed[len(closed)-1-i] {
			reason = "section markers span incompatible document structure (<" + closed[len(closed)-1-i] + "> reopened as <" + opened[i] + ">)"
			return reason
		}
	}

	return reason
}

// fillEmptyContainers gives every table cell and text box that rendered without block content an
// empty paragraph, which WordprocessingML requires.
func fillEmptyContainers(part string) (filled string, err error) {
	if !strings.Contains(part, "<w:tc") && !strings.Contains(part, "<w:txbxContent") {
		filled = part
		return filled, err
	}

	tokens, err := tokenize(part)
	if err != nil {
		return filled, err
	}

	// one entry per open container, true once it holds a paragraph or table
	var hasBlock []bool
	var b strings.Builder
	b.Grow(len(part))

	for _, tok := range tokens {
		switch tok.kind {
		case tokText:
			b.WriteString(tok.open)
			b.WriteString(tok.body)
			b.WriteString("</" + elemText + ">")
			continue
		case tokOpen, tokEmpty:
			if len(hasBlock) > 0 && (tok.name == elemParagraph || tok.name == "w:tbl") {
				hasBlock[len(hasBlock)-1] = true
			}
			if tok.kind == tokOpen && blockContainers[tok.name] {
				hasBlock = append(hasBlock, false)
			}
		case tokClose:
			if blockContainers[tok.name] && len(hasBlock) > 0 {
				if !hasBlock[len(hasBlock)-1] {
					b.WriteString("<w:p/>")
				}
				hasBlock = hasBlock[:len(hasBlock)-1]
			}
		}
		b.WriteString(tok.raw)
	}

	filled = b.String()
	return filled, err
}
