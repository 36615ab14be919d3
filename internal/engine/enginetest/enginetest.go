// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

// Spec describes one fake document.
type Spec struct {
	Kind     engine.Kind
	Pages    []engine.Size
	Marks    map[int]int
	Password string
	OpenErr  error
	LoadErr  map[int]error
	Outline  []engine.OutlineItem
	Scripts  []string
	Links    map[int][]engine.Link
	Text     map[int]string
}

// Uniform returns n pages of the same size.
func Uniform(n int, w, h float64) []engine.Size {
	out := make([]engine.Size, n)
	for i := range out {
		out[i] = engine.Size{W: w, H: h}
	}
	return out
}

// Engine serves Specs by path. Unknown paths fail with ErrUnableToLoad.
type Engine struct {
	mu    sync.Mutex
	docs  map[string]Spec
	opens map[string]int

	// LoadStarted, when non-nil, runs as every page load begins, before
	// LoadGate is consulted.
	LoadStarted func(index int)
	// LoadGate, when non-nil, is received from before every page load.
	LoadGate chan struct{}
	// RenderHook, when non-nil, runs at the start of every Render.
	RenderHook func(page int, cookie *engine.Cookie) error

	renders  atomic.Int64
	released atomic.Int64
	closed   atomic.Int64
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{docs: make(map[string]Spec), opens: make(map[string]int)}
}

// Set registers or replaces the document served at path.
func (e *Engine) Set(path string, spec Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[path] = spec
}

// Opens reports how many times path was opened.
func (e *Engine) Opens(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens[path]
}

// Renders reports the total number of Render calls.
func (e *Engine) Renders() int64 { return e.renders.Load() }

// Released reports the total number of released page handles.
func (e *Engine) Released() int64 { return e.released.Load() }

// Closed reports the total number of closed documents.
func (e *Engine) Closed() int64 { return e.closed.Load() }

// Open implements engine.Engine.
func (e *Engine) Open(ctx context.Context, path string) (engine.Document, error) {
	e.mu.Lock()
	spec, ok := e.docs[path]
	e.opens[path]++
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, engine.ErrUnableToLoad)
	}
	if spec.OpenErr != nil {
		return nil, spec.OpenErr
	}
	return &Document{eng: e, spec: spec, locked: spec.Password != ""}, nil
}

// Document is a fake open document.
type Document struct {
	eng    *Engine
	spec   Spec
	mu     sync.Mutex
	locked bool
	closed bool
}

// Kind implements engine.Document.
func (d *Document) Kind() engine.Kind { return d.spec.Kind }

// NeedsPassword implements engine.Document.
func (d *Document) NeedsPassword() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// Authenticate implements engine.Document.
func (d *Document) Authenticate(password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if password == d.spec.Password {
		d.locked = false
	}
	return !d.locked
}

// PageCount implements engine.Document.
func (d *Document) PageCount() (int, error) {
	if d.NeedsPassword() {
		return 0, engine.ErrPasswordRequired
	}
	return len(d.spec.Pages), nil
}

// LoadPage implements engine.Document.
func (d *Document) LoadPage(ctx context.Context, index int) (engine.Page, error) {
	if started := d.eng.LoadStarted; started != nil {
		started(index)
	}
	if gate := d.eng.LoadGate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if index < 0 || index >= len(d.spec.Pages) {
		return nil, engine.ErrPageRange
	}
	if err := d.spec.LoadErr[index]; err != nil {
		return nil, err
	}
	return &Page{doc: d, index: index, size: d.spec.Pages[index], marks: d.spec.Marks[index]}, nil
}

// Outline implements engine.Document.
func (d *Document) Outline() ([]engine.OutlineItem, error) {
	return d.spec.Outline, nil
}

// Scripts implements engine.Scripter.
func (d *Document) Scripts() []string {
	return d.spec.Scripts
}

// Reflow implements engine.Reflower by scaling the page count by em/10.
func (d *Document) Reflow(width, height, em float64) (engine.Document, error) {
	if em <= 0 {
		return nil, fmt.Errorf("reflow: em must be positive")
	}
	n := int(float64(len(d.spec.Pages)) * em / 10)
	if n < 1 {
		n = 1
	}
	spec := d.spec
	spec.Pages = Uniform(n, width, height)
	return &Document{eng: d.eng, spec: spec}, nil
}

// Close implements engine.Document.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.eng.closed.Add(1)
	}
	return nil
}

// Page is a fake page handle.
type Page struct {
	doc      *Document
	index    int
	size     engine.Size
	mu       sync.Mutex
	marks    int
	released bool
}

// Index implements engine.Page.
func (p *Page) Index() int { return p.index }

// Size implements engine.Page.
func (p *Page) Size() engine.Size { return p.size }

// PendingMarks implements engine.Page.
func (p *Page) PendingMarks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marks
}

// Marks implements engine.MarkApplier with one 10pt box per pending mark
// down the left edge.
func (p *Page) Marks() []engine.Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]engine.Rect, p.marks)
	for i := range out {
		y := float64(i) * 12
		out[i] = engine.Rect{X0: 0, Y0: y, X1: 10, Y1: y + 10}
	}
	return out
}

// ApplyMarks implements engine.MarkApplier.
func (p *Page) ApplyMarks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = 0
	return nil
}

// Released reports whether Release was called.
func (p *Page) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Render implements engine.Page. It paints a grey box inset by 10% of the
// page so tests can tell rendered pages from background.
func (p *Page) Render(ctx context.Context, req engine.RenderRequest, dst *gg.Pixmap, cookie *engine.Cookie) error {
	p.doc.eng.renders.Add(1)
	if hook := p.doc.eng.RenderHook; hook != nil {
		if err := hook(p.index, cookie); err != nil {
			return err
		}
	}
	if !cookie.Step() {
		return engine.ErrAborted
	}
	if p.Released() {
		return engine.ErrReleased
	}
	c := canvas.New(req, dst)
	defer c.Close()
	inset := p.size.W * 0.1
	c.FillRect(engine.Rect{X0: inset, Y0: inset, X1: p.size.W - inset, Y1: p.size.H - inset}, gg.RGB(0.25, 0.25, 0.25))
	return nil
}

// Search implements engine.Page.
func (p *Page) Search(query string) []engine.Rect {
	text := p.doc.spec.Text[p.index]
	if query == "" || !strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
		return nil
	}
	return []engine.Rect{{X0: 0, Y0: 0, X1: p.size.W, Y1: 12}}
}

// Links implements engine.Page.
func (p *Page) Links() []engine.Link {
	return p.doc.spec.Links[p.index]
}

// Release implements engine.Page.
func (p *Page) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		p.released = true
		p.doc.eng.released.Add(1)
	}
}
