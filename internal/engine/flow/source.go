package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/tabula/docx"
	"github.com/tsawler/tabula/epubdoc"
	"github.com/tsawler/tabula/htmldoc"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/odt"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/five82/folio/internal/engine"
)

// Source is the input format of a reflowable document.
type Source int

const (
	SourceUnknown Source = iota
	SourceMarkdown
	SourceText
	SourceDOCX
	SourceODT
	SourceHTML
	SourceEPUB
)

func (s Source) String() string {
	switch s {
	case SourceMarkdown:
		return "markdown"
	case SourceText:
		return "text"
	case SourceDOCX:
		return "docx"
	case SourceODT:
		return "odt"
	case SourceHTML:
		return "html"
	case SourceEPUB:
		return "epub"
	default:
		return "unknown"
	}
}

// SourceFor classifies path by extension.
func SourceFor(path string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown":
		return SourceMarkdown
	case ".txt", ".text", ".log", "":
		return SourceText
	case ".docx":
		return SourceDOCX
	case ".odt":
		return SourceODT
	case ".html", ".htm", ".xhtml":
		return SourceHTML
	case ".epub":
		return SourceEPUB
	default:
		return SourceUnknown
	}
}

type blockKind int

const (
	blockPara blockKind = iota
	blockHeading
	blockItem
	blockCode
	blockQuote
	blockRule
)

// block is one unit of content before wrapping. Code blocks keep their
// line breaks; other blocks are wrapped at word boundaries.
type block struct {
	kind   blockKind
	level  int
	indent int
	text   string
}

func readBlocks(path string, src Source) ([]block, error) {
	switch src {
	case SourceMarkdown:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		s, err := decodeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return markdownBlocks([]byte(s)), nil
	case SourceText:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		s, err := decodeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return textBlocks(s), nil
	case SourceDOCX:
		r, err := docx.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open docx %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		defer r.Close()
		doc, err := r.Document()
		if err != nil {
			return nil, fmt.Errorf("read docx %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		return modelBlocks(doc), nil
	case SourceODT:
		r, err := odt.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open odt %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		defer r.Close()
		md, err := r.Markdown()
		if err != nil {
			return nil, fmt.Errorf("read odt %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		return markdownBlocks([]byte(md)), nil
	case SourceHTML:
		r, err := htmldoc.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open html %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		defer r.Close()
		md, err := r.Markdown()
		if err != nil {
			return nil, fmt.Errorf("read html %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		return markdownBlocks([]byte(md)), nil
	case SourceEPUB:
		r, err := epubdoc.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open epub %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		defer r.Close()
		md, err := r.Markdown()
		if err != nil {
			return nil, fmt.Errorf("read epub %s: %w: %w", path, engine.ErrUnableToLoad, err)
		}
		return markdownBlocks([]byte(md)), nil
	}
	return nil, fmt.Errorf("open %s: %w", path, engine.ErrUnsupportedFormat)
}

// decodeBytes honours a UTF-16 or UTF-8 byte order mark and otherwise
// expects UTF-8.
func decodeBytes(data []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrUnsupportedFormat, err)
	}
	if !utf8.Valid(out) || strings.ContainsRune(string(out[:min(len(out), 4096)]), 0) {
		return "", engine.ErrUnsupportedFormat
	}
	return string(out), nil
}

// textBlocks keeps plain text line structure: each source line is its own
// paragraph, blank lines become paragraph gaps.
func textBlocks(s string) []block {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []block
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(strings.ReplaceAll(line, "\t", "    "), " ")
		if line == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))
		out = append(out, block{kind: blockPara, indent: min(indent/2, 8), text: strings.TrimLeft(line, " ")})
	}
	return out
}

func modelBlocks(doc *model.Document) []block {
	var out []block
	for _, page := range doc.Pages {
		for _, el := range page.Elements {
			switch e := el.(type) {
			case *model.Heading:
				if t := strings.TrimSpace(e.Text); t != "" {
					out = append(out, block{kind: blockHeading, level: max(e.Level, 1), text: t})
				}
			case *model.Paragraph:
				if t := strings.TrimSpace(e.Text); t != "" {
					out = append(out, block{kind: blockPara, text: t})
				}
			}
		}
	}
	return out
}

func markdownBlocks(src []byte) []block {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var out []block
	collect(doc, src, 0, false, &out)
	return out
}

func collect(node ast.Node, src []byte, depth int, quoted bool, out *[]block) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		collectNode(child, src, depth, quoted, out)
	}
}

func collectNode(node ast.Node, src []byte, depth int, quoted bool, out *[]block) {
	switch n := node.(type) {
	case *ast.Heading:
		*out = append(*out, block{kind: blockHeading, level: n.Level, text: inline(n, src)})
	case *ast.Paragraph, *ast.TextBlock:
		kind := blockPara
		if quoted {
			kind = blockQuote
		}
		if t := inline(n, src); t != "" {
			*out = append(*out, block{kind: kind, indent: depth, text: t})
		}
	case *ast.List:
		collectList(n, src, depth, quoted, out)
	case *ast.Blockquote:
		collect(n, src, depth, true, out)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		var sb strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		if code := strings.TrimRight(sb.String(), "\n"); code != "" {
			*out = append(*out, block{kind: blockCode, indent: depth, text: code})
		}
	case *ast.ThematicBreak:
		*out = append(*out, block{kind: blockRule})
	case *ast.HTMLBlock:
	default:
		collect(node, src, depth, quoted, out)
	}
}

// collectList emits the first paragraph of each item with its marker and
// nests the rest one level deeper.
func collectList(list *ast.List, src []byte, depth int, quoted bool, out *[]block) {
	n := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d.", n)
			n++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				if first {
					*out = append(*out, block{kind: blockItem, indent: depth, text: marker + " " + inline(c, src)})
					first = false
					continue
				}
			}
			if first {
				*out = append(*out, block{kind: blockItem, indent: depth, text: marker})
				first = false
			}
			collectNode(c, src, depth+1, quoted, out)
		}
		if first {
			*out = append(*out, block{kind: blockItem, indent: depth, text: marker})
		}
	}
}

// inline flattens the inline content of a block node to plain text.
func inline(node ast.Node, src []byte) string {
	var sb strings.Builder
	inlineTo(&sb, node, src)
	return strings.TrimSpace(sb.String())
}

func inlineTo(sb *strings.Builder, node ast.Node, src []byte) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			sb.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(n.Value)
		case *ast.AutoLink:
			sb.Write(n.Label(src))
		case *ast.RawHTML:
		default:
			inlineTo(sb, c, src)
		}
	}
}
