package render

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/gogpu/gg"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/loop"
)

// Visible is one page on screen for a pass.
type Visible struct {
	Index int
	Page  engine.Page
	// Rect is the page's full device rectangle in viewport pixels; it may
	// extend past the viewport.
	Rect image.Rectangle
	// Scale is device pixels per point.
	Scale float64
}

// Target supplies what a pass draws. Both methods run on the interactive
// goroutine.
type Target interface {
	ViewportSize() image.Point
	VisiblePages() []Visible
}

// Options configures a Scheduler.
type Options struct {
	Poster     loop.Poster
	Target     Target
	Rasterizer *TileRasterizer
	Logger     *slog.Logger
	Buffers    int
	Background gg.RGBA
	Paper      gg.RGBA

	// Decorate, when set, draws over a page after it has been rasterized.
	Decorate func(dst *gg.Pixmap, v Visible)
	// Started and Ended receive the page indices of each pass.
	Started func(pages []int)
	Ended   func(pages []int)
}

type pass struct {
	id       uint64
	buf      int
	pm       *gg.Pixmap
	pages    []Visible
	cookies  []*engine.Cookie
	inflight int
	failed   int
}

// Scheduler runs render passes. Every method must be called on the
// interactive goroutine.
type Scheduler struct {
	opts    Options
	logger  *slog.Logger
	buffers *BufferPool
	ctx     context.Context
	cancel  context.CancelFunc

	lastID    uint64
	active    *pass
	requested bool
	released  bool
	front     *gg.Pixmap
	passes    int
}

// NewScheduler returns an idle scheduler.
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Paper == (gg.RGBA{}) {
		opts.Paper = gg.RGB(1, 1, 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:    opts,
		logger:  logger.With("component", "render"),
		buffers: NewBufferPool(opts.Buffers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// TriggerRender starts a pass, or asks for one more after the active pass.
func (s *Scheduler) TriggerRender() {
	if s.released {
		return
	}
	if s.active != nil {
		s.requested = true
		return
	}
	s.start()
}

// Active reports whether a pass is in flight.
func (s *Scheduler) Active() bool { return s.active != nil }

// Passes reports how many passes have completed.
func (s *Scheduler) Passes() int { return s.passes }

// Front returns the most recently completed frame, or nil.
func (s *Scheduler) Front() *gg.Pixmap { return s.front }

// Buffers exposes the buffer rotation.
func (s *Scheduler) Buffers() *BufferPool { return s.buffers }

func (s *Scheduler) start() {
	size := s.opts.Target.ViewportSize()
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	s.buffers.Resize(size.X, size.Y)
	s.lastID++
	idx, pm, err := s.buffers.Acquire(s.lastID)
	if err != nil {
		s.logger.Warn("render pass skipped", "pass", s.lastID, "error", err)
		return
	}
	pm.Clear(s.opts.Background)

	p := &pass{id: s.lastID, buf: idx, pm: pm, pages: s.opts.Target.VisiblePages()}
	s.active = p
	if s.opts.Started != nil {
		s.opts.Started(indices(p.pages))
	}

	viewport := image.Rect(0, 0, size.X, size.Y)
	for _, v := range p.pages {
		clip := v.Rect.Intersect(viewport)
		if clip.Empty() || v.Page == nil {
			continue
		}
		cookie := engine.NewCookie()
		p.cookies = append(p.cookies, cookie)
		req := engine.RenderRequest{
			Transform:  gg.Scale(v.Scale, v.Scale),
			Patch:      clip.Sub(v.Rect.Min),
			Background: s.opts.Paper,
		}
		p.inflight++
		s.opts.Rasterizer.Rasterize(s.ctx, v.Page, req, pm, clip.Min, cookie, func(err error) {
			s.opts.Poster.Post(func() { s.finish(p, v, err) })
		})
	}
	if p.inflight == 0 {
		s.complete(p)
	}
}

func (s *Scheduler) finish(p *pass, v Visible, err error) {
	if s.active != p {
		return
	}
	if err != nil {
		p.failed++
		if !errors.Is(err, engine.ErrAborted) {
			s.logger.Warn("page render failed", "pass", p.id, "page", v.Index, "error", err)
		}
	}
	p.inflight--
	if p.inflight == 0 {
		s.complete(p)
	}
}

func (s *Scheduler) complete(p *pass) {
	if s.opts.Decorate != nil {
		for _, v := range p.pages {
			s.opts.Decorate(p.pm, v)
		}
	}
	s.buffers.Release(p.buf, p.id)
	s.front = p.pm
	s.active = nil
	s.passes++
	s.logger.Debug("render pass complete", "pass", p.id, "pages", len(p.pages), "failed", p.failed)
	if s.opts.Ended != nil {
		s.opts.Ended(indices(p.pages))
	}
	if s.requested && !s.released {
		s.requested = false
		s.start()
	}
}

// Release aborts the active pass and drops every buffer. Completions that
// arrive afterwards are ignored. The scheduler cannot be used again.
func (s *Scheduler) Release() {
	if s.released {
		return
	}
	s.released = true
	if p := s.active; p != nil {
		for _, c := range p.cookies {
			c.Abort()
		}
	}
	s.cancel()
	s.active = nil
	s.requested = false
	s.front = nil
	s.buffers.Drop()
}

func indices(pages []Visible) []int {
	out := make([]int, len(pages))
	for i, v := range pages {
		out[i] = v.Index
	}
	return out
}
