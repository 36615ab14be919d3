// Package mux picks a document engine for a file from its content, falling
// back to its extension.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tsawler/tabula/format"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/flow"
)

// Engine dispatches Open to the PDF or the reflowable engine.
type Engine struct {
	logger *slog.Logger
	pdf    engine.Engine
	flow   *flow.Engine
}

var _ engine.Engine = (*Engine)(nil)

// New returns a dispatcher over the given engines.
func New(logger *slog.Logger, pdf engine.Engine, reflow *flow.Engine) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger.With("component", "mux"), pdf: pdf, flow: reflow}
}

// Detect classifies path. Content wins over the extension; the extension
// only decides between the text formats tabula cannot see from magic bytes.
func Detect(path string) (format.Format, flow.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.Unknown, flow.SourceUnknown, fmt.Errorf("open %s: %w: %w", path, engine.ErrUnableToLoad, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return format.Unknown, flow.SourceUnknown, fmt.Errorf("stat %s: %w: %w", path, engine.ErrUnableToLoad, err)
	}
	if info.IsDir() {
		return format.Unknown, flow.SourceUnknown, fmt.Errorf("open %s: is a directory: %w", path, engine.ErrUnableToLoad)
	}

	byContent, err := format.DetectFromReader(f, info.Size())
	if err != nil {
		// Truncated archives land here; the extension may still help.
		byContent = format.Unknown
	}
	byName := format.Detect(path)

	switch byContent {
	case format.PDF:
		return format.PDF, flow.SourceUnknown, nil
	case format.DOCX:
		return format.DOCX, flow.SourceDOCX, nil
	case format.ODT:
		return format.ODT, flow.SourceODT, nil
	case format.HTML:
		return format.HTML, flow.SourceHTML, nil
	case format.XLSX, format.PPTX:
		return byContent, flow.SourceUnknown, nil
	}
	if byName == format.PDF {
		// A .pdf without a header is not a PDF; let the PDF engine report it.
		return format.PDF, flow.SourceUnknown, nil
	}
	return byName, flow.SourceFor(path), nil
}

// Open implements engine.Engine.
func (e *Engine) Open(ctx context.Context, path string) (engine.Document, error) {
	f, src, err := Detect(path)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("detected format", "path", path, "format", f.String(), "source", src.String())
	switch {
	case f == format.PDF:
		return e.pdf.Open(ctx, path)
	case src != flow.SourceUnknown:
		doc, err := e.flow.OpenSource(ctx, path, src)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, fmt.Errorf("open %s: %s: %w", path, f, engine.ErrUnsupportedFormat)
}
