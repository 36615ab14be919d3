package pdf

import (
	"context"
	"strings"
	"sync"

	"github.com/gogpu/gg"
	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/pages"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/canvas"
)

// cookie poll interval, in display list items
const checkEvery = 32

var (
	textColour   = gg.RGB(0, 0, 0)
	redactColour = gg.RGB(0, 0, 0)
)

type textRun struct {
	text     string
	x        float64
	baseline float64
	size     float64
	width    float64
	bounds   engine.Rect
}

type displayList struct {
	shapes []shape
	runs   []textRun
}

// Page is a loaded PDF page.
type Page struct {
	doc     *Document
	index   int
	node    pageNode
	geo     geometry
	redacts []engine.Rect
	links   []engine.Link

	mu       sync.Mutex
	applied  bool
	released bool
	list     *displayList
}

var (
	_ engine.Page        = (*Page)(nil)
	_ engine.MarkApplier = (*Page)(nil)
)

// Index implements engine.Page.
func (p *Page) Index() int { return p.index }

// Size implements engine.Page.
func (p *Page) Size() engine.Size { return p.geo.size() }

// PendingMarks implements engine.Page. Unapplied redactions are pending.
func (p *Page) PendingMarks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied {
		return 0
	}
	return len(p.redacts)
}

// Marks implements engine.MarkApplier.
func (p *Page) Marks() []engine.Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied {
		return nil
	}
	return p.redacts
}

// ApplyMarks implements engine.MarkApplier. Applied redactions paint black
// and hide the text beneath them; the file on disk is unchanged.
func (p *Page) ApplyMarks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return engine.ErrReleased
	}
	p.applied = true
	return nil
}

// Links implements engine.Page.
func (p *Page) Links() []engine.Link { return p.links }

// Release implements engine.Page.
func (p *Page) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.list = nil
}

func (p *Page) display() (*displayList, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, false, engine.ErrReleased
	}
	if p.list == nil {
		p.list = p.doc.buildDisplayList(p.node, p.geo)
	}
	return p.list, p.applied, nil
}

func (p *Page) hidden(r engine.Rect, applied bool) bool {
	if !applied {
		return false
	}
	for _, red := range p.redacts {
		if intersects(r, red) {
			return true
		}
	}
	return false
}

// Render implements engine.Page.
func (p *Page) Render(ctx context.Context, req engine.RenderRequest, dst *gg.Pixmap, cookie *engine.Cookie) error {
	list, applied, err := p.display()
	if err != nil {
		return err
	}
	c := canvas.New(req, dst)
	defer c.Close()

	step := 0
	check := func() error {
		step++
		if step%checkEvery != 0 {
			return nil
		}
		if !cookie.Step() {
			return engine.ErrAborted
		}
		return ctx.Err()
	}

	for _, s := range list.shapes {
		if err := check(); err != nil {
			return err
		}
		if s.fill {
			c.FillPath(s.path, s.fillCol, s.evenOdd)
		}
		if s.stroke {
			c.StrokePath(s.path, s.strokeCol, s.width)
		}
	}
	for _, r := range list.runs {
		if err := check(); err != nil {
			return err
		}
		if p.hidden(r.bounds, applied) {
			continue
		}
		c.Text(r.x, r.baseline, r.size, r.width, r.text, textColour)
	}
	if applied {
		for _, red := range p.redacts {
			c.FillRect(red, redactColour)
		}
	}
	if !cookie.Step() {
		return engine.ErrAborted
	}
	return nil
}

// Search implements engine.Page with a case-insensitive match inside each
// text run. Match bounds are interpolated by rune position.
func (p *Page) Search(query string) []engine.Rect {
	if query == "" {
		return nil
	}
	list, applied, err := p.display()
	if err != nil {
		return nil
	}
	q := []rune(strings.ToLower(query))
	var out []engine.Rect
	for _, r := range list.runs {
		if p.hidden(r.bounds, applied) {
			continue
		}
		text := []rune(strings.ToLower(r.text))
		if len(text) == 0 {
			continue
		}
		step := (r.bounds.X1 - r.bounds.X0) / float64(len(text))
		for i := 0; i+len(q) <= len(text); i++ {
			if string(text[i:i+len(q)]) != string(q) {
				continue
			}
			out = append(out, engine.Rect{
				X0: r.bounds.X0 + step*float64(i),
				Y0: r.bounds.Y0,
				X1: r.bounds.X0 + step*float64(i+len(q)),
				Y1: r.bounds.Y1,
			})
			i += len(q) - 1
		}
	}
	return out
}

// buildDisplayList reads a page's content under the document lock. Broken
// content yields a partial list rather than an error.
func (d *Document) buildDisplayList(node pageNode, geo geometry) *displayList {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := &displayList{}
	if d.closed {
		return list
	}

	tp := pages.NewPage(node.dict, node.inherited, d.r)
	resources, ok := d.resolve(node.dict.Get("Resources")).(core.Dict)
	if !ok {
		resources, _ = d.resolve(node.inherited.Get("Resources")).(core.Dict)
	}

	var data []byte
	contents := node.dict.Get("Contents")
	refs := []core.Object{contents}
	if arr, ok := d.resolve(contents).(core.Array); ok {
		refs = arr
	}
	for _, obj := range refs {
		s, ok := d.resolve(obj).(*core.Stream)
		if !ok {
			continue
		}
		b, err := d.streamData(owner(obj, core.IndirectRef{}), s)
		if err != nil {
			d.logger.Debug("unreadable content stream", "page", d.byRef[node.ref.Number], "error", err)
			continue
		}
		data = append(data, b...)
		data = append(data, '\n')
	}
	if d.sec != nil {
		d.decryptFonts(resources)
	}

	if len(data) > 0 {
		ops, err := parseOps(data)
		if err != nil {
			d.logger.Debug("content stream parse failed", "page", d.byRef[node.ref.Number], "error", err)
		} else {
			p := newPainter(d, geo)
			p.run(ops, resources, 0)
			list.shapes = p.shapes
		}
	}

	frags, err := d.r.ExtractTextFragments(tp)
	if err != nil {
		d.logger.Debug("text extraction failed", "page", d.byRef[node.ref.Number], "error", err)
	}
	for _, f := range frags {
		text := strings.TrimRight(f.Text, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		size := f.FontSize
		if size <= 0 {
			size = f.Height
		}
		if size <= 0 {
			continue
		}
		base := geo.point(f.X, f.Y)
		width := f.Width
		if width <= 0 {
			width = size * canvas.Advance * float64(len([]rune(text)))
		}
		list.runs = append(list.runs, textRun{
			text:     text,
			x:        base.X,
			baseline: base.Y,
			size:     size,
			width:    width,
			bounds:   engine.Rect{X0: base.X, Y0: base.Y - size, X1: base.X + width, Y1: base.Y + size*0.25},
		})
	}
	return list
}

// decryptFonts decrypts the ToUnicode maps of a page's fonts so tabula's
// text extraction reads plain streams.
func (d *Document) decryptFonts(resources core.Dict) {
	fonts, _ := d.resolve(resources.Get("Font")).(core.Dict)
	for _, f := range fonts {
		font, ok := d.resolve(f).(core.Dict)
		if !ok {
			continue
		}
		tu := font.Get("ToUnicode")
		if s, ok := d.resolve(tu).(*core.Stream); ok {
			_, _ = d.streamData(owner(tu, core.IndirectRef{}), s)
		}
	}
}
