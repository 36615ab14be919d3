// Package viewer connects one document session to the layout engine and
// the render scheduler.
//
// A Viewer is owned by the interactive goroutine. Gestures and session
// events mutate the layout and request a layout pass; requests made before
// the pass runs are coalesced into one posted closure. Each layout pass
// triggers a render and reports LayoutCompleted to the session.
package viewer

import (
	"image"
	"log/slog"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/dockind"
	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/layout"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/render"
	"github.com/five82/folio/internal/session"
)

// State is a viewing position sufficient to restore the viewport.
type State struct {
	Page     int
	Scale    float64
	ScrollX  int
	ScrollY  int
	PageList bool
}

// Box is the reflow layout box in points.
type Box struct {
	W, H, Em float64
}

// Options configure a Viewer.
type Options struct {
	Poster     loop.Poster
	Rasterizer *render.TileRasterizer
	Logger     *slog.Logger
	Layout     layout.Config
	Buffers    int
	Background gg.RGBA
	// Editing is true when form fields are editable.
	Editing bool
	Reflow  Box
	// Frame runs after each completed render pass.
	Frame func()
}

// Summary is a snapshot for status displays.
type Summary struct {
	Page      int
	Pages     int
	Loaded    int
	Scale     float64
	Columns   int
	Rendering bool
	Hits      int
	Hit       int
}

// Viewer is the interactive view of one session.
type Viewer struct {
	opts   Options
	logger *slog.Logger
	sess   *session.Session
	lay    *layout.Engine
	sched  *render.Scheduler
	kind   dockind.Kind

	posted   bool
	fitted   bool
	disabled bool
	pageList bool
	restore  *State
	// goTo is a page a document script asked for, shown once it is laid
	// out; -1 when none
	goTo      int
	zoomFrom  float64
	rendering map[int]bool

	query   string
	hits    []session.Hit
	current int
	em      float64
}

// New builds a viewer for sess. Session events must be passed to
// HandleEvent.
func New(sess *session.Session, opts Options) *Viewer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Reflow == (Box{}) {
		opts.Reflow = Box{W: 312, H: 504, Em: 10}
	}
	v := &Viewer{
		opts:      opts,
		logger:    logger.With("component", "viewer"),
		sess:      sess,
		lay:       layout.New(opts.Layout),
		kind:      dockind.For(engine.KindGeneric),
		rendering: make(map[int]bool),
		goTo:      -1,
		current:   -1,
		em:        opts.Reflow.Em,
	}
	v.sched = render.NewScheduler(render.Options{
		Poster:     opts.Poster,
		Target:     v,
		Rasterizer: opts.Rasterizer,
		Logger:     logger,
		Buffers:    opts.Buffers,
		Background: opts.Background,
		Decorate:   v.decorate,
		Started:    v.passStarted,
		Ended:      v.passEnded,
	})
	return v
}

// Session returns the viewed session.
func (v *Viewer) Session() *session.Session { return v.sess }

// Layout exposes the layout engine.
func (v *Viewer) Layout() *layout.Engine { return v.lay }

// Kind returns the document family behavior.
func (v *Viewer) Kind() dockind.Kind { return v.kind }

// Frame returns the last completed frame, or nil.
func (v *Viewer) Frame() *gg.Pixmap { return v.sched.Front() }

// Passes reports how many render passes completed.
func (v *Viewer) Passes() int { return v.sched.Passes() }

// Disabled reports whether a fatal error ended interaction.
func (v *Viewer) Disabled() bool { return v.disabled }

// ViewportSize implements render.Target.
func (v *Viewer) ViewportSize() image.Point { return v.lay.Viewport() }

// VisiblePages implements render.Target.
func (v *Viewer) VisiblePages() []render.Visible {
	store := v.sess.Pages()
	scale := v.lay.DevicePerPoint()
	var out []render.Visible
	for _, p := range v.lay.Visible() {
		page, ok := store.At(p.Index)
		if !ok {
			continue
		}
		out = append(out, render.Visible{Index: p.Index, Page: page, Rect: p.Rect, Scale: scale})
	}
	return out
}

func (v *Viewer) decorate(dst *gg.Pixmap, vis render.Visible) {
	o := dockind.Overlay{Current: -1, Pending: v.sess.Pages().HasPending(vis.Index)}
	for i, h := range v.hits {
		if h.Page != vis.Index {
			continue
		}
		if i == v.current {
			o.Current = len(o.Hits)
		}
		o.Hits = append(o.Hits, h.Bounds)
	}
	v.kind.DrawOverlay(dst, vis, o)
}

func (v *Viewer) passStarted(pages []int) {
	for _, i := range pages {
		v.rendering[i] = true
	}
}

func (v *Viewer) passEnded(pages []int) {
	for _, i := range pages {
		delete(v.rendering, i)
	}
	if v.opts.Frame != nil {
		v.opts.Frame()
	}
}

// requestLayout posts one layout pass unless one is already posted.
func (v *Viewer) requestLayout() {
	if v.posted || v.disabled {
		return
	}
	v.posted = true
	v.opts.Poster.Post(v.runLayout)
}

func (v *Viewer) runLayout() {
	v.posted = false
	if v.disabled {
		return
	}
	res := v.lay.Layout()
	if v.lay.NeedsLayout() {
		v.requestLayout()
	}
	if v.lay.PageCount() == 0 {
		return
	}
	if p := v.goTo; p >= 0 && p < v.lay.PageCount() && v.fitted && !v.lay.NeedsLayout() {
		v.goTo = -1
		v.GoToPage(p)
	}
	if res.ColumnsChanged {
		v.logger.Debug("columns changed", "columns", res.Columns)
	}
	v.sched.TriggerRender()
	v.sess.NotifyLayoutCompleted()
}

// Resize reports a new viewport size. A reshape after the first layout
// refits the content to the new width.
func (v *Viewer) Resize(w, h int) {
	old := v.lay.Viewport()
	if old == image.Pt(w, h) {
		return
	}
	v.lay.SetViewport(w, h)
	if v.fitted && old.X != w && v.restore == nil {
		v.lay.ConfigurationChange()
	}
	v.requestLayout()
}

// HandleEvent applies a session event.
func (v *Viewer) HandleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventPageLoad:
		v.addPages(ev.Count)
	case session.EventDocComplete:
		v.logger.Debug("document complete", "pages", v.lay.PageCount())
		v.applyRestore()
		if v.restore != nil {
			v.logger.Info("saved position past the last page", "page", v.restore.Page)
			v.restore = nil
			v.fit()
		}
		if !v.fitted && v.restore == nil {
			v.fit()
		}
		v.requestLayout()
	case session.EventReload:
		v.rebuild()
	case session.EventSelectionChanged:
		v.sched.TriggerRender()
	case session.EventGoToPage:
		v.goTo = ev.Page
		v.requestLayout()
	case session.EventError:
		if ev.Fatal {
			v.disabled = true
			v.sched.Release()
		}
	}
}

func (v *Viewer) addPages(count int) {
	store := v.sess.Pages()
	first := v.lay.PageCount() == 0
	for i := v.lay.PageCount(); i < count && i < store.Len(); i++ {
		p, _ := store.At(i)
		v.lay.AddPage(p.Size())
	}
	if first && v.lay.PageCount() > 0 {
		v.kind = dockind.For(v.sess.Kind())
		v.lay.SetReflow(v.sess.Reflowable())
	}
	// The first fit waits for enough pages to settle the column count.
	if !v.fitted && v.restore == nil && v.lay.PageCount() >= restoreLead {
		v.fit()
	}
	v.applyRestore()
	v.requestLayout()
}

// rebuild replaces every page size after a reload or reflow.
func (v *Viewer) rebuild() {
	store := v.sess.Pages()
	sizes := make([]engine.Size, 0, store.Len())
	for i := 0; i < store.Len(); i++ {
		p, _ := store.At(i)
		sizes = append(sizes, p.Size())
	}
	page := v.lay.MostVisible()
	v.lay.SetPages(sizes)
	v.kind = dockind.For(v.sess.Kind())
	if v.query != "" {
		v.hits = v.sess.Search(v.query)
		v.current = min(v.current, len(v.hits)-1)
	}
	if page >= 0 {
		v.lay.ScrollToPage(min(page, len(sizes)-1))
	}
	v.requestLayout()
}

func (v *Viewer) fit() {
	v.fitted = true
	v.lay.FitWidth()
}

// ScrollBy scrolls the content by (dx, dy) pixels.
func (v *Viewer) ScrollBy(dx, dy int) {
	v.lay.ScrollBy(dx, dy)
	v.requestLayout()
}

// PageDown scrolls forward by most of a screen.
func (v *Viewer) PageDown() { v.ScrollBy(0, v.screenStep()) }

// PageUp scrolls back by most of a screen.
func (v *Viewer) PageUp() { v.ScrollBy(0, -v.screenStep()) }

func (v *Viewer) screenStep() int {
	return max(v.lay.Viewport().Y*9/10, 1)
}

// ScaleBegin starts a pinch.
func (v *Viewer) ScaleBegin() { v.lay.ScaleBegin() }

// Scale continues a pinch around focus, in viewport pixels.
func (v *Viewer) Scale(factor float64, focus image.Point) {
	v.lay.ScaleBy(factor, focus)
	v.requestLayout()
}

// ScaleEnd finishes a pinch.
func (v *Viewer) ScaleEnd() {
	v.lay.ScaleEnd()
	v.requestLayout()
}

// Zoom scales around the viewport centre outside a pinch.
func (v *Viewer) Zoom(factor float64) {
	vp := v.lay.Viewport()
	v.lay.ScaleBy(factor, image.Pt(vp.X/2, vp.Y/2))
	v.requestLayout()
}

// FitWidth refits the current columns to the viewport width.
func (v *Viewer) FitWidth() {
	v.fitted = true
	v.zoomFrom = 0
	v.lay.ConfigurationChange()
	v.requestLayout()
}

// GoToPage scrolls page i into view.
func (v *Viewer) GoToPage(i int) {
	if i < 0 || i >= v.lay.PageCount() {
		return
	}
	v.lay.ScrollToPage(i)
	v.requestLayout()
}

// CurrentPage is the most visible page, or 0.
func (v *Viewer) CurrentPage() int { return max(v.lay.MostVisible(), 0) }

// NextPage goes to the page after the most visible one.
func (v *Viewer) NextPage() { v.GoToPage(v.CurrentPage() + 1) }

// PrevPage goes to the page before the most visible one.
func (v *Viewer) PrevPage() { v.GoToPage(v.CurrentPage() - 1) }

// TapKind says what a tap did.
type TapKind int

const (
	TapNone TapKind = iota
	TapPagedUp
	TapPagedDown
	TapInternalLink
	TapExternalLink
)

// TapResult describes the outcome of a tap.
type TapResult struct {
	Kind TapKind
	Page int
	URI  string
}

// Tap handles a single tap at p, in viewport pixels. Links under the tap
// are followed when the document kind allows it; otherwise a tap in the top
// or bottom tenth of the viewport pages up or down.
func (v *Viewer) Tap(p image.Point) TapResult {
	if v.disabled {
		return TapResult{}
	}
	if i, local, ok := v.lay.PageAt(p); ok {
		if l, ok := v.linkAt(i, local); ok {
			switch {
			case l.External():
				return TapResult{Kind: TapExternalLink, Page: -1, URI: l.URI}
			default:
				v.GoToPage(l.Page)
				return TapResult{Kind: TapInternalLink, Page: l.Page}
			}
		}
	}
	margin := v.lay.Viewport().Y / 10
	switch {
	case p.Y < margin:
		v.PageUp()
		return TapResult{Kind: TapPagedUp}
	case p.Y >= v.lay.Viewport().Y-margin:
		v.PageDown()
		return TapResult{Kind: TapPagedDown}
	}
	return TapResult{}
}

func (v *Viewer) linkAt(i int, local image.Point) (engine.Link, bool) {
	policy := v.kind.HyperlinkPolicy()
	if policy == dockind.LinksOff {
		return engine.Link{}, false
	}
	page, ok := v.sess.Pages().At(i)
	if !ok {
		return engine.Link{}, false
	}
	s := v.lay.DevicePerPoint()
	x, y := float64(local.X)/s, float64(local.Y)/s
	for _, l := range page.Links() {
		b := l.Bounds
		if x >= b.X0 && x < b.X1 && y >= b.Y0 && y < b.Y1 && policy.Follows(l) {
			return l, true
		}
	}
	return engine.Link{}, false
}

// DoubleTap toggles a 2x zoom around p when the document kind allows it.
// It reports whether anything happened.
func (v *Viewer) DoubleTap(p image.Point) bool {
	if v.disabled || !v.kind.CanDoubleTap(v.opts.Editing) {
		return false
	}
	if v.zoomFrom > 0 {
		v.lay.ScaleBy(v.zoomFrom/v.lay.Scale(), p)
		v.zoomFrom = 0
	} else {
		v.zoomFrom = v.lay.Scale()
		v.lay.ScaleBy(2, p)
	}
	v.requestLayout()
	return true
}

// Search finds query on every loaded page and moves to the first match.
// It returns the number of matches.
func (v *Viewer) Search(query string) int {
	v.query = query
	v.hits = nil
	v.current = -1
	if query != "" {
		v.hits = v.sess.Search(query)
	}
	if len(v.hits) > 0 {
		v.current = 0
		v.GoToPage(v.hits[0].Page)
	}
	v.sched.TriggerRender()
	return len(v.hits)
}

// NextHit moves to the next search match, wrapping around.
func (v *Viewer) NextHit() { v.stepHit(1) }

// PrevHit moves to the previous search match, wrapping around.
func (v *Viewer) PrevHit() { v.stepHit(-1) }

func (v *Viewer) stepHit(d int) {
	if len(v.hits) == 0 {
		return
	}
	v.current = (v.current + d + len(v.hits)) % len(v.hits)
	v.GoToPage(v.hits[v.current].Page)
	v.sched.TriggerRender()
}

// ApplyMarks applies pending marks on every page.
func (v *Viewer) ApplyMarks() error { return v.sess.ApplyPendingMarks() }

// ReflowText re-paginates a reflowable document with the em size changed
// by delta points.
func (v *Viewer) ReflowText(delta float64) error {
	em := min(max(v.em+delta, 6), 32)
	if err := v.sess.Reflow(v.opts.Reflow.W, v.opts.Reflow.H, em); err != nil {
		return err
	}
	v.em = em
	return nil
}

// TogglePageList flips the page list visibility flag.
func (v *Viewer) TogglePageList() bool {
	v.pageList = !v.pageList
	return v.pageList
}

// PageList reports whether the page list is shown.
func (v *Viewer) PageList() bool { return v.pageList }

// State captures the viewing position.
func (v *Viewer) State() State {
	page, scale, scroll := v.lay.Position()
	return State{Page: max(page, 0), Scale: scale, ScrollX: scroll.X, ScrollY: scroll.Y, PageList: v.pageList}
}

// Restore applies st once its page has loaded.
func (v *Viewer) Restore(st State) {
	v.pageList = st.PageList
	if st.Scale <= 0 {
		return
	}
	v.restore = &st
	v.applyRestore()
	v.requestLayout()
}

// restoreLead is how many pages past the saved one must be laid out before
// the saved scroll offset can be reached.
const restoreLead = 8

func (v *Viewer) applyRestore() {
	st := v.restore
	if st == nil || v.lay.PageCount() <= st.Page {
		return
	}
	if !v.sess.Completed() && v.lay.PageCount() < st.Page+restoreLead {
		return
	}
	v.restore = nil
	v.fitted = true
	v.lay.Restore(st.Scale, image.Pt(st.ScrollX, st.ScrollY))
}

// Summary reports the current status.
func (v *Viewer) Summary() Summary {
	return Summary{
		Page:      v.CurrentPage(),
		Pages:     v.sess.PageCount(),
		Loaded:    v.sess.Loaded(),
		Scale:     v.lay.Scale(),
		Columns:   v.lay.Columns(),
		Rendering: len(v.rendering) > 0,
		Hits:      len(v.hits),
		Hit:       v.current,
	}
}

// Close releases the render buffers. Late render completions are ignored.
func (v *Viewer) Close() {
	v.disabled = true
	v.sched.Release()
}
