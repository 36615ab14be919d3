package flow

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func open(t *testing.T, name, content string) *Document {
	t.Helper()
	doc, err := New(nil, Box{}).OpenSource(context.Background(), writeFile(t, name, []byte(content)), SourceFor(name))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return doc
}

func TestWrap(t *testing.T) {
	tests := []struct {
		in   string
		cols int
		want []string
	}{
		{"the quick brown fox", 9, []string{"the quick", "brown fox"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"日本語", 4, []string{"日本", "語"}},
		{"  spaced   out  ", 20, []string{"spaced out"}},
		{"", 5, nil},
	}
	for _, tt := range tests {
		if got := wrap(tt.in, tt.cols); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("wrap(%q, %d) = %q, want %q", tt.in, tt.cols, got, tt.want)
		}
	}
}

func TestMarkdownBlocks(t *testing.T) {
	src := "# Title\n\nPara one\ntwo.\n\n- a\n- b\n\n1. x\n\n> quoted\n\n```\ncode\n  line\n```\n\n---\n"
	got := markdownBlocks([]byte(src))
	want := []block{
		{kind: blockHeading, level: 1, text: "Title"},
		{kind: blockPara, text: "Para one two."},
		{kind: blockItem, text: "• a"},
		{kind: blockItem, text: "• b"},
		{kind: blockItem, text: "1. x"},
		{kind: blockQuote, text: "quoted"},
		{kind: blockCode, text: "code\n  line"},
		{kind: blockRule},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("blocks = %+v, want %+v", got, want)
	}
}

func TestDocument_OutlineAndSearch(t *testing.T) {
	doc := open(t, "notes.md", "# Alpha\n\nfirst words\n\n## Beta\n\nsecond words here\n")
	n, _ := doc.PageCount()
	if n != 1 {
		t.Fatalf("PageCount = %d, want 1", n)
	}
	outline, err := doc.Outline()
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	want := []engine.OutlineItem{{Level: 0, Title: "Alpha", Page: 0}, {Level: 1, Title: "Beta", Page: 0}}
	if !reflect.DeepEqual(outline, want) {
		t.Fatalf("outline = %+v, want %+v", outline, want)
	}

	page, err := doc.LoadPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if got := page.Size(); got != (engine.Size{W: 312, H: 504}) {
		t.Fatalf("Size = %v, want 312x504", got)
	}
	if hits := page.Search("WORDS"); len(hits) != 2 {
		t.Fatalf("Search(WORDS) = %v, want 2 hits", hits)
	}
	if _, err := doc.LoadPage(context.Background(), 1); !errors.Is(err, engine.ErrPageRange) {
		t.Fatalf("LoadPage(1) err = %v, want ErrPageRange", err)
	}
}

func TestDocument_Reflow(t *testing.T) {
	var sb strings.Builder
	for range 40 {
		sb.WriteString("lorem ipsum dolor sit amet consectetur\n\n")
	}
	doc := open(t, "long.md", sb.String())
	before, _ := doc.PageCount()
	if before != 2 {
		t.Fatalf("PageCount = %d, want 2", before)
	}
	next, err := doc.Reflow(312, 504, 20)
	if err != nil {
		t.Fatalf("Reflow: %v", err)
	}
	re := next.(*Document)
	after, _ := re.PageCount()
	if after <= before {
		t.Fatalf("PageCount after reflow = %d, want more than %d", after, before)
	}
	if re.Box() != (Box{Width: 312, Height: 504, Em: 20}) {
		t.Fatalf("Box = %+v", re.Box())
	}
	if got, _ := doc.PageCount(); got != before {
		t.Fatalf("original PageCount = %d, want %d", got, before)
	}
	if _, err := doc.Reflow(0, 504, 10); err == nil {
		t.Fatal("Reflow with zero width succeeded")
	}
}

func TestPage_Render(t *testing.T) {
	doc := open(t, "page.md", "# Heading\n\nbody text\n")
	page, err := doc.LoadPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	pm := gg.NewPixmap(312, 504)
	if err := page.Render(context.Background(), engine.ScaleRequest(1, image.Rect(0, 0, 312, 504)), pm, engine.NewCookie()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	dark := 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 312; x++ {
			if pm.GetPixel(x, y).R < 0.5 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatal("Render drew no ink in the heading area")
	}

	cookie := engine.NewCookie()
	cookie.Abort()
	if err := page.Render(context.Background(), engine.ScaleRequest(1, image.Rect(0, 0, 312, 504)), pm, cookie); !errors.Is(err, engine.ErrAborted) {
		t.Fatalf("Render with aborted cookie err = %v, want ErrAborted", err)
	}
	page.Release()
	if err := page.Render(context.Background(), engine.ScaleRequest(1, image.Rect(0, 0, 312, 504)), pm, engine.NewCookie()); !errors.Is(err, engine.ErrReleased) {
		t.Fatalf("Render after Release err = %v, want ErrReleased", err)
	}
}

func TestOpen_Sources(t *testing.T) {
	utf16 := []byte{0xff, 0xfe, 'h', 0, 'i', 0, ' ', 0, 't', 0, 'h', 0, 'e', 0, 'r', 0, 'e', 0}
	doc := open(t, "wide.txt", string(utf16))
	page, err := doc.LoadPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if hits := page.Search("there"); len(hits) != 1 {
		t.Fatalf("Search(there) = %v, want 1 hit", hits)
	}

	html := open(t, "page.html", "<html><head><title>T</title></head><body><h1>Intro</h1><p>Hello flow</p></body></html>")
	page, err = html.LoadPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("LoadPage html: %v", err)
	}
	if hits := page.Search("hello flow"); len(hits) != 1 {
		t.Fatalf("html Search = %v, want 1 hit", hits)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "blob.txt")
	if err := os.WriteFile(binary, []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 1}, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		src  Source
		want error
	}{
		{"missing", filepath.Join(dir, "missing.md"), SourceMarkdown, engine.ErrUnableToLoad},
		{"binary", binary, SourceText, engine.ErrUnsupportedFormat},
		{"unknown", binary, SourceUnknown, engine.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, Box{}).OpenSource(context.Background(), tt.path, tt.src)
			if !errors.Is(err, tt.want) {
				t.Fatalf("OpenSource err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSourceFor(t *testing.T) {
	tests := map[string]Source{
		"a.md":        SourceMarkdown,
		"README":      SourceText,
		"b.TXT":       SourceText,
		"c.docx":      SourceDOCX,
		"d.odt":       SourceODT,
		"e.htm":       SourceHTML,
		"f.epub":      SourceEPUB,
		"g.pdf":       SourceUnknown,
		"archive.zip": SourceUnknown,
	}
	for name, want := range tests {
		if got := SourceFor(name); got != want {
			t.Fatalf("SourceFor(%q) = %v, want %v", name, got, want)
		}
	}
}
