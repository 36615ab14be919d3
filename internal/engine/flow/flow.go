package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

const checkEvery = 16

var (
	inkColour   = gg.RGB(0.1, 0.1, 0.1)
	codeColour  = gg.RGB(0.93, 0.93, 0.93)
	quoteColour = gg.RGB(0.6, 0.6, 0.6)
)

// Engine opens reflowable documents.
type Engine struct {
	logger *slog.Logger
	box    Box
}

// New returns an engine that paginates at box. A zero box means DefaultBox.
func New(logger *slog.Logger, box Box) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if !box.valid() {
		box = DefaultBox
	}
	return &Engine{logger: logger.With("engine", "flow"), box: box}
}

// Open implements engine.Engine, choosing the source by extension.
func (e *Engine) Open(ctx context.Context, path string) (engine.Document, error) {
	return e.OpenSource(ctx, path, SourceFor(path))
}

// OpenSource opens path as src.
func (e *Engine) OpenSource(ctx context.Context, path string, src Source) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blocks, err := readBlocks(path, src)
	if err != nil {
		return nil, err
	}
	d := &Document{
		logger: e.logger.With("path", path, "source", src.String()),
		blocks: blocks,
	}
	d.layout = paginate(blocks, e.box)
	d.logger.Debug("paginated", "blocks", len(blocks), "pages", len(d.layout.pages))
	return d, nil
}

// Document is an open reflowable document.
type Document struct {
	logger *slog.Logger
	blocks []block

	mu     sync.Mutex
	layout pagination
	closed bool
}

var (
	_ engine.Document = (*Document)(nil)
	_ engine.Reflower = (*Document)(nil)
)

// Kind implements engine.Document.
func (d *Document) Kind() engine.Kind { return engine.KindGeneric }

// NeedsPassword implements engine.Document.
func (d *Document) NeedsPassword() bool { return false }

// Authenticate implements engine.Document.
func (d *Document) Authenticate(string) bool { return true }

// PageCount implements engine.Document.
func (d *Document) PageCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.layout.pages), nil
}

// Box reports the current reflow box.
func (d *Document) Box() Box {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layout.box
}

// Reflow implements engine.Reflower. The new document shares the parsed
// blocks.
func (d *Document) Reflow(width, height, em float64) (engine.Document, error) {
	box := Box{Width: width, Height: height, Em: em}
	if !box.valid() {
		return nil, fmt.Errorf("reflow %vx%v em %v: invalid box", width, height, em)
	}
	l := paginate(d.blocks, box)
	d.logger.Debug("reflowed", "width", width, "height", height, "em", em, "pages", len(l.pages))
	return &Document{logger: d.logger, blocks: d.blocks, layout: l}, nil
}

// LoadPage implements engine.Document.
func (d *Document) LoadPage(ctx context.Context, index int) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.layout.pages) {
		return nil, fmt.Errorf("load page %d: %w", index, engine.ErrPageRange)
	}
	return &Page{
		index: index,
		size:  engine.Size{W: d.layout.box.Width, H: d.layout.box.Height},
		lines: d.layout.pages[index],
	}, nil
}

// Outline implements engine.Document with one entry per heading.
func (d *Document) Outline() ([]engine.OutlineItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.layout.headings) == 0 {
		return nil, nil
	}
	minLevel := d.layout.headings[0].level
	for _, h := range d.layout.headings {
		minLevel = min(minLevel, h.level)
	}
	out := make([]engine.OutlineItem, 0, len(d.layout.headings))
	for _, h := range d.layout.headings {
		out = append(out, engine.OutlineItem{Level: h.level - minLevel, Title: h.title, Page: h.page})
	}
	return out, nil
}

// Close implements engine.Document.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Page is one paginated page. Its lines never change after load.
type Page struct {
	index int
	size  engine.Size
	lines []line

	mu       sync.Mutex
	released bool
}

var _ engine.Page = (*Page)(nil)

// Index implements engine.Page.
func (p *Page) Index() int { return p.index }

// Size implements engine.Page.
func (p *Page) Size() engine.Size { return p.size }

// PendingMarks implements engine.Page. Reflowable pages have no marks.
func (p *Page) PendingMarks() int { return 0 }

// Links implements engine.Page.
func (p *Page) Links() []engine.Link { return nil }

// Release implements engine.Page.
func (p *Page) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

func (p *Page) live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.released
}

// Render implements engine.Page.
func (p *Page) Render(ctx context.Context, req engine.RenderRequest, dst *gg.Pixmap, cookie *engine.Cookie) error {
	if !p.live() {
		return engine.ErrReleased
	}
	c := canvas.New(req, dst)
	defer c.Close()

	for i, l := range p.lines {
		if i%checkEvery == checkEvery-1 {
			if !cookie.Step() {
				return engine.ErrAborted
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		switch l.kind {
		case blockRule:
			c.FillRect(engine.Rect{X0: l.x, Y0: l.baseline - 0.5, X1: l.x + l.width, Y1: l.baseline + 0.5}, quoteColour)
			continue
		case blockCode:
			b := l.bounds()
			c.FillRect(engine.Rect{X0: b.X0 - 2, Y0: b.Y0, X1: p.size.W - b.X0 + 2, Y1: b.Y1}, codeColour)
		case blockQuote:
			b := l.bounds()
			c.FillRect(engine.Rect{X0: b.X0 - l.size*0.6, Y0: b.Y0, X1: b.X0 - l.size*0.4, Y1: b.Y1}, quoteColour)
		}
		c.Text(l.x, l.baseline, l.size, l.width, l.text, inkColour)
	}
	if !cookie.Step() {
		return engine.ErrAborted
	}
	return nil
}

// Search implements engine.Page with a case-insensitive match per line.
func (p *Page) Search(query string) []engine.Rect {
	if query == "" || !p.live() {
		return nil
	}
	q := []rune(strings.ToLower(query))
	var out []engine.Rect
	for _, l := range p.lines {
		text := []rune(strings.ToLower(l.text))
		if len(text) < len(q) {
			continue
		}
		b := l.bounds()
		step := l.width / float64(len(text))
		for i := 0; i+len(q) <= len(text); i++ {
			if string(text[i:i+len(q)]) != string(q) {
				continue
			}
			out = append(out, engine.Rect{X0: b.X0 + step*float64(i), Y0: b.Y0, X1: b.X0 + step*float64(i+len(q)), Y1: b.Y1})
			i += len(q) - 1
		}
	}
	return out
}
