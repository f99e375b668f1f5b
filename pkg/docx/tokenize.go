package docx

import (
	"html"
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokChar tokenKind = iota
	tokOpen
	tokClose
	tokEmpty
	tokText
	tokTag
)

const (
	elemParagraph = "w:p"
	elemRun       = "w:r"
	elemText      = "w:t"
	elemRunProps  = "w:rPr"
)

// token is one piece of a WordprocessingML part. Markup tokens carry their raw source; text tokens
// carry the unescaped content of one w:t element.
type token struct {
	kind tokenKind
	name string
	raw  string

	// tokText: opening w:t tag, escaped body and unescaped content. tokText and tokTag: enclosing run properties.
	open     string
	body     string
	text     string
	runProps string

	tag *insertion
}

// tokenize splits a part into markup, character data and w:t text tokens.
func tokenize(src string) (tokens []token, err error) {
	var stack []string
	runProps := ""

	for pos := 0; pos < len(src); {
		if src[pos] != '<' {
			next := strings.IndexByte(src[pos:], '<')
			if next < 0 {
				next = len(src) - pos
			}
			tokens = append(tokens, token{kind: tokChar, raw: src[pos : pos+next]})
			pos += next
			continue
		}

		end := markupEnd(src, pos)
		if end < 0 {
			err = errors.Errorf("unterminated markup at offset %d", pos)
			return tokens, err
		}

		raw := src[pos:end]
		kind, name := classify(raw)
		pos = end

		switch kind {
		case tokOpen:
			if name == elemText {
				closeAt := strings.Index(src[pos:], "</"+elemText+">")
				if closeAt < 0 {
					err = errors.Errorf("unterminated %s at offset %d", elemText, pos)
					return tokens, err
				}
				tokens = append(tokens, token{
					kind:     tokText,
					open:     raw,
					body:     src[pos : pos+closeAt],
					text:     html.UnescapeString(src[pos : pos+closeAt]),
					runProps: runProps,
				})
				pos += closeAt + len("</"+elemText+">")
				continue
			}

			if name == elemRun {
				runProps = ""
			}
			if name == elemRunProps && len(stack) > 0 && stack[len(stack)-1] == elemRun {
				closeAt := strings.Index(src[pos:], "</"+elemRunProps+">")
				if closeAt >= 0 {
					runProps = raw + src[pos:pos+closeAt+len("</"+elemRunProps+">")]
				}
			}
			stack = append(stack, name)
		case tokClose:
			if len(stack) == 0 || stack[len(stack)-1] != name {
				err = errors.Errorf("unexpected closing tag </%s> at offset %d", name, pos-len(raw))
				return tokens, err
			}
			stack = stack[:len(stack)-1]
		case tokEmpty:
			if name == elemText {
				tokens = append(tokens, token{kind: tokText, open: strings.TrimSuffix(strings.TrimSuffix(raw, ">"), "/") + ">", runProps: runProps})
				continue
			}
		}

		tokens = append(tokens, token{kind: kind, name: name, raw: raw})
	}

	if len(stack) > 0 {
		err = errors.Errorf("unclosed element <%s>", stack[len(stack)-1])
		return tokens, err
	}

	return tokens, err
}

// markupEnd returns the offset just past the markup starting at pos, honoring quoted attribute values,
// comments and CDATA sections.
func markupEnd(src string, pos int) (end int) {
	switch {
	case strings.HasPrefix(src[pos:], "<!--"):
		idx := strings.Index(src[pos:], "-->")
		if idx < 0 {
			return -1
		}
		return pos + idx + len("-->")
	case strings.HasPrefix(src[pos:], "<![CDATA["):
		idx := strings.Index(src[pos:], "]]>")
		if idx < 0 {
			return -1
		}
		return pos + idx + len("]]>")
	}

	var quote byte
	for i := pos + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + 1
		}
	}

	return -1
}

// classify reports the token kind and element name of one piece of markup.
func classify(raw string) (kind tokenKind, name string) {
	switch {
	case strings.HasPrefix(raw, "<?"), strings.HasPrefix(raw, "<!"):
		return tokChar, ""
	case strings.HasPrefix(raw, "</"):
		return tokClose, elementName(raw[2:])
	case strings.HasSuffix(raw, "/>"):
		return tokEmpty, elementName(raw[1:])
	}

	return tokOpen, elementName(raw[1:])
}

func elementName(s string) (name string) {
	end := strings.IndexAny(s, " \t\r\n/>")
	if end < 0 {
		end = len(s)
	}
	name = s[:end]
	return name
}
