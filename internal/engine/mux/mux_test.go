package mux

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/tabula/format"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/flow"
)

type stubEngine struct {
	opened []string
}

func (s *stubEngine) Open(ctx context.Context, path string) (engine.Document, error) {
	s.opened = append(s.opened, path)
	return nil, engine.ErrEmptyDocument
}

func zipWith(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	sheet := filepath.Join(dir, "sheet.bin")
	zipWith(t, sheet, map[string]string{"[Content_Types].xml": "<Types/>", "xl/workbook.xml": "<workbook/>"})

	tests := []struct {
		name   string
		path   string
		format format.Format
		source flow.Source
	}{
		{"pdf header wins over extension", write("report.txt", "%PDF-1.7\n"), format.PDF, flow.SourceUnknown},
		{"html content", write("page", "<!DOCTYPE html><html></html>"), format.HTML, flow.SourceHTML},
		{"markdown by name", write("notes.md", "# hi\n"), format.Unknown, flow.SourceMarkdown},
		{"plain text by name", write("README", "hello\n"), format.Unknown, flow.SourceText},
		{"headerless pdf", write("broken.pdf", "nope"), format.PDF, flow.SourceUnknown},
		{"spreadsheet", sheet, format.XLSX, flow.SourceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, src, err := Detect(tt.path)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if f != tt.format || src != tt.source {
				t.Fatalf("Detect = %v, %v, want %v, %v", f, src, tt.format, tt.source)
			}
		})
	}

	if _, _, err := Detect(filepath.Join(dir, "missing")); !errors.Is(err, engine.ErrUnableToLoad) {
		t.Fatalf("Detect(missing) err = %v, want ErrUnableToLoad", err)
	}
	if _, _, err := Detect(dir); !errors.Is(err, engine.ErrUnableToLoad) {
		t.Fatalf("Detect(dir) err = %v, want ErrUnableToLoad", err)
	}
}

func TestEngine_Open(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "a.pdf")
	mdPath := filepath.Join(dir, "b.md")
	binPath := filepath.Join(dir, "c.bin")
	for p, body := range map[string]string{pdfPath: "%PDF-1.4\n", mdPath: "# Title\n\ntext\n", binPath: "\x00\x01\x02\x03"} {
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pdf := &stubEngine{}
	e := New(nil, pdf, flow.New(nil, flow.Box{}))

	if _, err := e.Open(context.Background(), pdfPath); !errors.Is(err, engine.ErrEmptyDocument) {
		t.Fatalf("Open(pdf) err = %v, want the stub's error", err)
	}
	if len(pdf.opened) != 1 || pdf.opened[0] != pdfPath {
		t.Fatalf("pdf engine opened %v, want [%s]", pdf.opened, pdfPath)
	}

	doc, err := e.Open(context.Background(), mdPath)
	if err != nil {
		t.Fatalf("Open(md): %v", err)
	}
	if doc.Kind() != engine.KindGeneric {
		t.Fatalf("Kind = %v, want generic", doc.Kind())
	}
	_ = doc.Close()

	if _, err := e.Open(context.Background(), binPath); !errors.Is(err, engine.ErrUnsupportedFormat) {
		t.Fatalf("Open(bin) err = %v, want ErrUnsupportedFormat", err)
	}
}
