package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/pages"
	"github.com/tsawler/tabula/reader"

	"github.com/five82/folio/internal/engine"
)

// maxTreeDepth bounds recursion through page, outline and name trees.
const maxTreeDepth = 64

// inheritable page attributes copied down the page tree
var inheritable = []string{"MediaBox", "CropBox", "Resources", "Rotate"}

// Engine opens PDF files.
type Engine struct {
	logger *slog.Logger
}

// New returns a PDF engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger.With("engine", "pdf")}
}

// Open implements engine.Engine.
func (e *Engine) Open(ctx context.Context, path string) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := reader.Open(path)
	if err != nil {
		return nil, classifyOpen(path, err)
	}
	d := &Document{
		path:      path,
		logger:    e.logger.With("path", path),
		r:         r,
		byRef:     make(map[int]int),
		decrypted: make(map[int]bool),
	}
	if err := d.init(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return d, nil
}

func classifyOpen(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("open %s: %w: %w", path, engine.ErrUnableToLoad, err)
	case strings.Contains(err.Error(), "invalid PDF header"), strings.Contains(err.Error(), "header too short"):
		return fmt.Errorf("open %s: %w: %w", path, engine.ErrUnsupportedFormat, err)
	default:
		return fmt.Errorf("open %s: %w: %w", path, engine.ErrUnableToLoad, err)
	}
}

type pageNode struct {
	ref       core.IndirectRef
	dict      core.Dict
	inherited core.Dict
}

// Document is an open PDF.
type Document struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	r         *reader.Reader
	sec       *security
	locked    bool
	catalog   core.Dict
	pages     []pageNode
	byRef     map[int]int
	decrypted map[int]bool
	closed    bool
}

var (
	_ engine.Document = (*Document)(nil)
	_ engine.Scripter = (*Document)(nil)
)

func (d *Document) init() error {
	trailer := d.r.Trailer()
	if enc := trailer.Get("Encrypt"); enc != nil {
		dict, ok := d.resolve(enc).(core.Dict)
		if !ok {
			return fmt.Errorf("read encryption dictionary: %w", engine.ErrUnsupportedEncryption)
		}
		sec, err := newSecurity(dict, trailer)
		if err != nil {
			return err
		}
		d.sec = sec
		d.locked = !sec.authenticate("")
		if ref, ok := enc.(core.IndirectRef); ok {
			d.decrypted[ref.Number] = true
		}
	}

	catalog, err := d.r.GetCatalog()
	if err != nil {
		return fmt.Errorf("read catalog: %w: %w", engine.ErrUnableToLoad, err)
	}
	d.catalog = catalog
	root, ok := d.resolve(catalog.Get("Pages")).(core.Dict)
	if !ok {
		return fmt.Errorf("read page tree: %w", engine.ErrUnableToLoad)
	}
	if err := d.walk(root, core.Dict{}, 0, map[int]bool{}); err != nil {
		return fmt.Errorf("read page tree: %w: %w", engine.ErrUnableToLoad, err)
	}
	d.logger.Debug("pdf opened", "pages", len(d.pages), "encrypted", d.sec != nil, "locked", d.locked)
	return nil
}

func inherit(parent, node core.Dict) core.Dict {
	out := make(core.Dict, len(inheritable))
	for _, k := range inheritable {
		if v := node.Get(k); v != nil {
			out[k] = v
		} else if v := parent.Get(k); v != nil {
			out[k] = v
		}
	}
	return out
}

func (d *Document) walk(node, parent core.Dict, depth int, seen map[int]bool) error {
	if depth > maxTreeDepth {
		return errors.New("page tree too deep")
	}
	inh := inherit(parent, node)
	kids, _ := d.resolve(node.Get("Kids")).(core.Array)
	for _, kid := range kids {
		ref, ok := kid.(core.IndirectRef)
		if !ok {
			continue
		}
		if seen[ref.Number] {
			return fmt.Errorf("page tree cycle at object %d", ref.Number)
		}
		seen[ref.Number] = true
		dict, ok := d.resolve(ref).(core.Dict)
		if !ok {
			continue
		}
		typ, _ := dict.GetName("Type")
		if typ == "Pages" || (typ != "Page" && dict.Has("Kids")) {
			if err := d.walk(dict, inh, depth+1, seen); err != nil {
				return err
			}
			continue
		}
		d.byRef[ref.Number] = len(d.pages)
		d.pages = append(d.pages, pageNode{ref: ref, dict: dict, inherited: inh})
	}
	return nil
}

func (d *Document) resolve(obj core.Object) core.Object {
	if obj == nil {
		return nil
	}
	out, err := d.r.Resolve(obj)
	if err != nil {
		d.logger.Debug("resolve failed", "object", obj.String(), "error", err)
		return nil
	}
	return out
}

// owner returns obj's reference when it is indirect, otherwise fallback.
func owner(obj core.Object, fallback core.IndirectRef) core.IndirectRef {
	if ref, ok := obj.(core.IndirectRef); ok {
		return ref
	}
	return fallback
}

// text resolves and decodes a text string belonging to object owner.
func (d *Document) text(obj core.Object, own core.IndirectRef) string {
	own = owner(obj, own)
	s, ok := d.resolve(obj).(core.String)
	if !ok {
		return ""
	}
	b := []byte(s)
	if d.sec != nil && own.Number > 0 {
		plain, err := d.sec.decryptString(own, b)
		if err != nil {
			return ""
		}
		b = plain
	}
	return decodeText(b)
}

// streamData decrypts s once and returns its decoded bytes.
func (d *Document) streamData(ref core.IndirectRef, s *core.Stream) ([]byte, error) {
	if d.sec != nil && ref.Number > 0 && !d.decrypted[ref.Number] {
		if typ, _ := s.Dict.GetName("Type"); typ != "XRef" {
			plain, err := d.sec.decryptStream(ref, s.Data)
			if err != nil {
				return nil, fmt.Errorf("decrypt object %d: %w", ref.Number, err)
			}
			s.Data = plain
		}
		d.decrypted[ref.Number] = true
	}
	return s.Decode()
}

// Kind implements engine.Document.
func (d *Document) Kind() engine.Kind { return engine.KindPDF }

// NeedsPassword implements engine.Document.
func (d *Document) NeedsPassword() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// Authenticate implements engine.Document. Either the user or the owner
// password unlocks the document.
func (d *Document) Authenticate(password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.locked {
		return true
	}
	if d.sec.authenticate(password) {
		d.locked = false
		d.logger.Info("pdf unlocked")
	}
	return !d.locked
}

// PageCount implements engine.Document.
func (d *Document) PageCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return 0, engine.ErrPasswordRequired
	}
	return len(d.pages), nil
}

// LoadPage implements engine.Document.
func (d *Document) LoadPage(ctx context.Context, index int) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return nil, engine.ErrReleased
	case d.locked:
		return nil, engine.ErrPasswordRequired
	case index < 0 || index >= len(d.pages):
		return nil, engine.ErrPageRange
	}

	node := d.pages[index]
	tp := pages.NewPage(node.dict, node.inherited, d.r)
	box, err := tp.CropBox()
	if err != nil {
		d.logger.Debug("page has no usable box", "page", index, "error", err)
		box = letter
	}
	p := &Page{
		doc:   d,
		index: index,
		node:  node,
		geo:   newGeometry(box, tp.Rotate()),
	}
	p.redacts, p.links = d.annotations(node, p.geo)
	return p, nil
}

func (d *Document) annotations(node pageNode, geo geometry) (redacts []engine.Rect, links []engine.Link) {
	annots, _ := d.resolve(node.dict.Get("Annots")).(core.Array)
	for _, item := range annots {
		own := owner(item, node.ref)
		a, ok := d.resolve(item).(core.Dict)
		if !ok {
			continue
		}
		bounds := geo.rect(d.numbers(a.Get("Rect")))
		if bounds.Empty() {
			continue
		}
		sub, _ := a.GetName("Subtype")
		switch sub {
		case "Redact":
			redacts = append(redacts, bounds)
		case "Link":
			link := engine.Link{Bounds: bounds, Page: -1}
			if dest := a.Get("Dest"); dest != nil {
				link.Page = d.destPage(dest, own, 0)
			} else if act := a.Get("A"); act != nil {
				link.Page, link.URI = d.action(act, own)
			}
			if link.Page >= 0 || link.URI != "" {
				links = append(links, link)
			}
		}
	}
	return redacts, links
}

func (d *Document) numbers(obj core.Object) []float64 {
	arr, _ := d.resolve(obj).(core.Array)
	out := make([]float64, 0, len(arr))
	for _, v := range arr {
		switch n := d.resolve(v).(type) {
		case core.Int:
			out = append(out, float64(n))
		case core.Real:
			out = append(out, float64(n))
		default:
			return nil
		}
	}
	return out
}

// action reads a GoTo or URI action.
func (d *Document) action(obj core.Object, own core.IndirectRef) (int, string) {
	own = owner(obj, own)
	act, ok := d.resolve(obj).(core.Dict)
	if !ok {
		return -1, ""
	}
	s, _ := act.GetName("S")
	switch s {
	case "GoTo":
		return d.destPage(act.Get("D"), own, 0), ""
	case "URI":
		return -1, d.text(act.Get("URI"), own)
	}
	return -1, ""
}

// destPage resolves an explicit or named destination to a page index, -1
// when it points nowhere in this document.
func (d *Document) destPage(obj core.Object, own core.IndirectRef, depth int) int {
	if depth > 8 {
		return -1
	}
	own = owner(obj, own)
	switch v := d.resolve(obj).(type) {
	case core.Array:
		if len(v) == 0 {
			return -1
		}
		switch p := v[0].(type) {
		case core.IndirectRef:
			if i, ok := d.byRef[p.Number]; ok {
				return i
			}
		case core.Int:
			if int(p) >= 0 && int(p) < len(d.pages) {
				return int(p)
			}
		}
	case core.Dict:
		return d.destPage(v.Get("D"), own, depth+1)
	case core.Name:
		if dests, ok := d.resolve(d.catalog.Get("Dests")).(core.Dict); ok {
			return d.destPage(dests.Get(string(v)), own, depth+1)
		}
	case core.String:
		key := d.text(v, own)
		names, _ := d.resolve(d.catalog.Get("Names")).(core.Dict)
		found := -1
		d.eachName(names.Get("Dests"), core.IndirectRef{}, 0, func(k string, val core.Object, valOwner core.IndirectRef) bool {
			if k != key {
				return true
			}
			found = d.destPage(val, valOwner, depth+1)
			return false
		})
		return found
	}
	return -1
}

// eachName walks a name tree in key order until fn returns false.
func (d *Document) eachName(node core.Object, own core.IndirectRef, depth int, fn func(key string, val core.Object, own core.IndirectRef) bool) bool {
	if depth > maxTreeDepth {
		return true
	}
	own = owner(node, own)
	dict, ok := d.resolve(node).(core.Dict)
	if !ok {
		return true
	}
	if names, ok := d.resolve(dict.Get("Names")).(core.Array); ok {
		for i := 0; i+1 < len(names); i += 2 {
			if !fn(d.text(names[i], own), names[i+1], own) {
				return false
			}
		}
	}
	kids, _ := d.resolve(dict.Get("Kids")).(core.Array)
	for _, kid := range kids {
		if !d.eachName(kid, own, depth+1, fn) {
			return false
		}
	}
	return true
}

// Outline implements engine.Document.
func (d *Document) Outline() ([]engine.OutlineItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return nil, engine.ErrPasswordRequired
	}
	root, ok := d.resolve(d.catalog.Get("Outlines")).(core.Dict)
	if !ok {
		return nil, nil
	}

	var out []engine.OutlineItem
	seen := map[int]bool{}
	var walk func(obj core.Object, level int)
	walk = func(obj core.Object, level int) {
		for obj != nil && level < maxTreeDepth {
			ref, ok := obj.(core.IndirectRef)
			if !ok || seen[ref.Number] {
				return
			}
			seen[ref.Number] = true
			item, ok := d.resolve(ref).(core.Dict)
			if !ok {
				return
			}
			entry := engine.OutlineItem{Level: level, Title: d.text(item.Get("Title"), ref), Page: -1}
			if dest := item.Get("Dest"); dest != nil {
				entry.Page = d.destPage(dest, ref, 0)
			} else if act := item.Get("A"); act != nil {
				entry.Page, entry.URI = d.action(act, ref)
			}
			out = append(out, entry)
			if first := item.Get("First"); first != nil {
				walk(first, level+1)
			}
			obj = item.Get("Next")
		}
	}
	walk(root.Get("First"), 0)
	return out, nil
}

// Scripts implements engine.Scripter: document-level JavaScript from the
// name tree plus a JavaScript open action.
func (d *Document) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return nil
	}
	var out []string
	if names, ok := d.resolve(d.catalog.Get("Names")).(core.Dict); ok {
		d.eachName(names.Get("JavaScript"), core.IndirectRef{}, 0, func(_ string, val core.Object, own core.IndirectRef) bool {
			if js := d.javaScript(val, own); js != "" {
				out = append(out, js)
			}
			return true
		})
	}
	if js := d.javaScript(d.catalog.Get("OpenAction"), core.IndirectRef{}); js != "" {
		out = append(out, js)
	}
	return out
}

func (d *Document) javaScript(obj core.Object, own core.IndirectRef) string {
	own = owner(obj, own)
	act, ok := d.resolve(obj).(core.Dict)
	if !ok {
		return ""
	}
	if s, _ := act.GetName("S"); s != "JavaScript" {
		return ""
	}
	js := act.Get("JS")
	jsOwner := owner(js, own)
	switch v := d.resolve(js).(type) {
	case core.String:
		return d.text(v, jsOwner)
	case *core.Stream:
		data, err := d.streamData(jsOwner, v)
		if err != nil {
			d.logger.Warn("unreadable document script", "error", err)
			return ""
		}
		return decodeText(data)
	}
	return ""
}

// Close implements engine.Document.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.r.Close()
}
