// Package session drives one open document: opening, authentication,
// incremental page loading, reload, reflow and teardown.
//
// All exported methods must be called on the interactive goroutine, the
// one draining the loop.Poster given in Options. Background steps run on
// the session's task queue and hand their results back through completion
// steps; they never touch the page store or the document field directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/pagestore"
	"github.com/five82/folio/internal/scripting"
	"github.com/five82/folio/internal/taskq"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrNotLoaded      = errors.New("document not fully loaded")
	ErrBusy           = errors.New("document operation in progress")
	ErrReloadMismatch = errors.New("forced reload changed the page count")
	ErrNotReflowable  = errors.New("document is not reflowable")
)

const defaultScriptTimeout = 2 * time.Second

// Options configure a session.
type Options struct {
	Engine engine.Engine
	Poster loop.Poster
	Logger *slog.Logger
	// FormFilling enables document scripts once the document is unlocked.
	FormFilling   bool
	ScriptTimeout time.Duration
}

// Session owns a document handle and its page store.
type Session struct {
	opts   Options
	logger *slog.Logger
	path   string
	tasks  *taskq.Queue
	events bus

	doc       engine.Document
	pages     *pagestore.Store
	pageCount int
	loaded    int
	completed bool
	failed    error
	locked    bool
	password  string
	scripts   *scripting.Engine
	busy      bool

	aborted   atomic.Bool
	destroyed bool
	closed    bool
}

// Open starts a session for path. The document is opened on the task
// queue; progress arrives as events.
func Open(path string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = defaultScriptTimeout
	}
	s := &Session{
		opts:   opts,
		logger: logger.With("component", "session"),
		path:   path,
		pages:  pagestore.New(),
	}
	s.tasks = taskq.New(opts.Poster, logger)
	s.submitOpen()
	return s
}

// Path returns the path of the current document.
func (s *Session) Path() string { return s.path }

// Pages returns the page store. The store is replaced by a non-forced
// reload, so callers must not hold on to it across events.
func (s *Session) Pages() *pagestore.Store { return s.pages }

// PageCount is the number of pages the document reported.
func (s *Session) PageCount() int { return s.pageCount }

// Loaded is the number of pages loaded so far.
func (s *Session) Loaded() int { return s.loaded }

// Completed reports whether every page has loaded.
func (s *Session) Completed() bool { return s.completed }

// Err returns the fatal error that ended loading, if any.
func (s *Session) Err() error { return s.failed }

// AwaitingPassword reports whether the document is waiting for
// ProvidePassword.
func (s *Session) AwaitingPassword() bool { return s.locked }

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool { return s.destroyed }

// Closed reports whether teardown has finished.
func (s *Session) Closed() bool { return s.closed }

// Busy reports whether a password check, reload or reflow is in flight.
func (s *Session) Busy() bool { return s.busy }

// Kind reports the document kind, KindGeneric before the document opens.
func (s *Session) Kind() engine.Kind {
	if s.doc == nil {
		return engine.KindGeneric
	}
	return s.doc.Kind()
}

// Reflowable reports whether the document supports Reflow.
func (s *Session) Reflowable() bool {
	_, ok := s.doc.(engine.Reflower)
	return ok
}

// Subscribe registers a listener. The current progress is replayed first:
// PageLoad with the loaded count, then DocComplete if loading finished.
func (s *Session) Subscribe() *Subscription {
	var replay []Event
	if !s.destroyed {
		if s.loaded > 0 {
			replay = append(replay, Event{Kind: EventPageLoad, Count: s.loaded})
		}
		if s.completed {
			replay = append(replay, Event{Kind: EventDocComplete})
		}
	}
	return s.events.subscribe(replay)
}

func (s *Session) publish(ev Event) {
	if s.destroyed || s.failed != nil {
		return
	}
	s.events.publish(ev)
}

func (s *Session) fail(err error) {
	if s.failed != nil || s.destroyed {
		return
	}
	code := CodeOf(err)
	s.logger.Error("document load failed", "path", s.path, "code", code.String(), "error", err)
	s.publish(Event{Kind: EventError, Code: code, Err: err, Fatal: true})
	s.failed = err
}

func closeDoc(doc engine.Document) {
	if doc != nil {
		_ = doc.Close()
	}
}

func (s *Session) submitOpen() {
	eng, path := s.opts.Engine, s.path
	var (
		doc    engine.Document
		count  int
		locked bool
	)
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			if s.aborted.Load() {
				return engine.ErrAborted
			}
			d, err := eng.Open(ctx, path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			doc = d
			if d.NeedsPassword() {
				locked = true
				return nil
			}
			count, err = validate(d)
			return err
		},
		DoneFn: func(err error) {
			if s.aborted.Load() {
				closeDoc(doc)
				return
			}
			if err != nil {
				closeDoc(doc)
				s.fail(err)
				return
			}
			s.doc = doc
			if locked {
				s.requestPassword()
				return
			}
			s.afterValidation(count)
		},
	})
}

func validate(doc engine.Document) (int, error) {
	n, err := doc.PageCount()
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	if n <= 0 {
		return 0, engine.ErrEmptyDocument
	}
	return n, nil
}

func (s *Session) requestPassword() {
	s.locked = true
	s.logger.Info("password required", "path", s.path)
	s.publish(Event{Kind: EventError, Code: CodePasswordRequired, Err: engine.ErrPasswordRequired})
}

// ProvidePassword tries to unlock the document. A wrong password publishes
// PasswordRequired again; the right one resumes loading.
func (s *Session) ProvidePassword(password string) {
	if s.destroyed || s.failed != nil || !s.locked || s.busy || s.doc == nil {
		return
	}
	doc := s.doc
	var (
		ok    bool
		count int
	)
	s.busy = true
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			if s.aborted.Load() {
				return engine.ErrAborted
			}
			if ok = doc.Authenticate(password); !ok {
				return nil
			}
			var err error
			count, err = validate(doc)
			return err
		},
		DoneFn: func(err error) {
			s.busy = false
			if s.aborted.Load() {
				return
			}
			if err != nil {
				s.fail(err)
				return
			}
			if !ok {
				s.logger.Info("password rejected", "path", s.path)
				s.requestPassword()
				return
			}
			s.locked = false
			s.password = password
			s.afterValidation(count)
		},
	})
}

func (s *Session) afterValidation(count int) {
	s.pageCount = count
	s.logger.Info("document opened", "path", s.path, "pages", count, "kind", s.doc.Kind().String())
	if s.opts.FormFilling {
		if sc, ok := s.doc.(engine.Scripter); ok {
			s.submitScripts(sc, count)
		}
	}
	s.loadNextPage()
}

// scriptHost collects script side effects on the worker goroutine.
type scriptHost struct {
	count  int
	page   int
	moved  bool
	alerts []string
}

func (h *scriptHost) Alert(msg string) { h.alerts = append(h.alerts, msg) }
func (h *scriptHost) PageCount() int   { return h.count }
func (h *scriptHost) PageNumber() int  { return h.page }

// GoToPage records a navigation request; out of range pages are ignored.
func (h *scriptHost) GoToPage(index int) {
	if index < 0 || index >= h.count {
		return
	}
	h.page, h.moved = index, true
}

func (s *Session) submitScripts(sc engine.Scripter, count int) {
	timeout := s.opts.ScriptTimeout
	host := &scriptHost{count: count}
	var eng *scripting.Engine
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			scripts := sc.Scripts()
			if len(scripts) == 0 || s.aborted.Load() {
				return nil
			}
			var err error
			eng, err = scripting.New(host)
			if err != nil {
				return fmt.Errorf("start scripting: %w", err)
			}
			var errs []error
			for _, src := range scripts {
				runCtx, cancel := context.WithTimeout(ctx, timeout)
				_, err := eng.Execute(runCtx, src)
				cancel()
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
		DoneFn: func(err error) {
			if s.aborted.Load() {
				if eng != nil {
					eng.Close()
				}
				return
			}
			if err != nil {
				s.logger.Warn("document script failed", "path", s.path, "error", err)
			}
			s.scripts = eng
			for _, msg := range host.alerts {
				s.publish(Event{Kind: EventAlert, Message: msg})
			}
			if host.moved {
				s.publish(Event{Kind: EventGoToPage, Page: host.page})
			}
		},
	})
}

func (s *Session) loadNextPage() {
	if s.aborted.Load() || s.failed != nil {
		return
	}
	if s.loaded >= s.pageCount {
		if !s.completed {
			s.completed = true
			s.logger.Info("document loaded", "path", s.path, "pages", s.loaded)
			s.publish(Event{Kind: EventDocComplete})
		}
		return
	}

	doc, idx := s.doc, s.loaded
	var (
		page  engine.Page
		marks int
	)
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			if s.aborted.Load() {
				return engine.ErrAborted
			}
			p, err := doc.LoadPage(ctx, idx)
			if err != nil {
				return fmt.Errorf("load page %d: %w", idx, err)
			}
			page, marks = p, p.PendingMarks()
			return nil
		},
		DoneFn: func(err error) {
			if s.aborted.Load() {
				if page != nil {
					page.Release()
				}
				return
			}
			if err != nil {
				s.fail(err)
				return
			}
			if err := s.pages.Append(page); err != nil {
				page.Release()
				s.fail(err)
				return
			}
			if marks > 0 {
				_ = s.pages.MarkPending(idx)
			}
			s.loaded++
			s.publish(Event{Kind: EventPageLoad, Count: s.loaded})
			s.loadNextPage()
		},
	})
}

// loaded pages and their pending mark counts, produced by a background step
type pageBatch struct {
	pages []engine.Page
	marks []int
}

func (b *pageBatch) release() {
	for _, p := range b.pages {
		p.Release()
	}
	b.pages = nil
}

func (s *Session) loadAll(ctx context.Context, doc engine.Document, n int) (*pageBatch, error) {
	b := &pageBatch{pages: make([]engine.Page, 0, n), marks: make([]int, 0, n)}
	for i := 0; i < n; i++ {
		if s.aborted.Load() {
			b.release()
			return nil, engine.ErrAborted
		}
		p, err := doc.LoadPage(ctx, i)
		if err != nil {
			b.release()
			return nil, fmt.Errorf("load page %d: %w", i, err)
		}
		b.pages = append(b.pages, p)
		b.marks = append(b.marks, p.PendingMarks())
	}
	return b, nil
}

func (s *Session) checkIdle() error {
	switch {
	case s.destroyed:
		return ErrClosed
	case !s.completed || s.doc == nil:
		return ErrNotLoaded
	case s.busy:
		return ErrBusy
	}
	return nil
}

// Reload reopens path (the current path when empty). A forced reload keeps
// the page store and rebinds each index to the new document's page; it
// requires an unchanged page count. A plain reload builds a new store. On
// failure the current document stays in place.
func (s *Session) Reload(path string, forced bool) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	if path == "" {
		path = s.path
	}
	eng, want, password := s.opts.Engine, s.pages.Len(), s.password
	var (
		doc   engine.Document
		batch *pageBatch
	)
	s.busy = true
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			if s.aborted.Load() {
				return engine.ErrAborted
			}
			d, err := eng.Open(ctx, path)
			if err != nil {
				return fmt.Errorf("reopen %s: %w", path, err)
			}
			doc = d
			if d.NeedsPassword() && !d.Authenticate(password) {
				return engine.ErrPasswordRequired
			}
			n, err := validate(d)
			if err != nil {
				return err
			}
			if forced && n != want {
				return fmt.Errorf("reload %s: %d pages, had %d: %w", path, n, want, ErrReloadMismatch)
			}
			batch, err = s.loadAll(ctx, d, n)
			return err
		},
		DoneFn: func(err error) {
			s.busy = false
			if s.aborted.Load() || err != nil {
				if batch != nil {
					batch.release()
				}
				closeDoc(doc)
				if err != nil && !s.aborted.Load() {
					s.logger.Warn("reload failed", "path", path, "forced", forced, "error", err)
					s.publish(Event{Kind: EventError, Code: CodeOf(err), Err: err})
				}
				return
			}
			s.swap(path, doc, batch, forced)
		},
	})
	return nil
}

// Reflow re-paginates a reflowable document for a new layout box and
// replaces the page store.
func (s *Session) Reflow(width, height, em float64) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	r, ok := s.doc.(engine.Reflower)
	if !ok {
		return ErrNotReflowable
	}
	var (
		doc   engine.Document
		batch *pageBatch
	)
	s.busy = true
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			if s.aborted.Load() {
				return engine.ErrAborted
			}
			d, err := r.Reflow(width, height, em)
			if err != nil {
				return fmt.Errorf("reflow: %w", err)
			}
			doc = d
			n, err := validate(d)
			if err != nil {
				return err
			}
			batch, err = s.loadAll(ctx, d, n)
			return err
		},
		DoneFn: func(err error) {
			s.busy = false
			if s.aborted.Load() || err != nil {
				if batch != nil {
					batch.release()
				}
				closeDoc(doc)
				if err != nil && !s.aborted.Load() {
					s.logger.Warn("reflow failed", "error", err)
					s.publish(Event{Kind: EventError, Code: CodeOf(err), Err: err})
				}
				return
			}
			s.swap(s.path, doc, batch, false)
		},
	})
	return nil
}

func (s *Session) swap(path string, doc engine.Document, batch *pageBatch, forced bool) {
	if forced {
		for i, p := range batch.pages {
			old, err := s.pages.Rebind(i, p)
			if err != nil {
				p.Release()
				continue
			}
			old.Release()
			s.pages.ClearPending(i)
		}
	} else {
		s.pages.ReleaseAll()
		store := pagestore.New()
		for _, p := range batch.pages {
			if err := store.Append(p); err != nil {
				p.Release()
			}
		}
		s.pages = store
	}
	for i, m := range batch.marks {
		if m > 0 {
			_ = s.pages.MarkPending(i)
		}
	}

	if doc != s.doc {
		closeDoc(s.doc)
		s.doc = doc
	}
	s.path = path
	s.pageCount = s.pages.Len()
	s.loaded = s.pages.Len()
	s.completed = true
	s.logger.Info("document reloaded", "path", path, "forced", forced, "pages", s.loaded)
	s.publish(Event{Kind: EventReload})
}

// ApplyPendingMarks applies the marks on every pending page, clears them
// from the pending set and reports each page as changed.
func (s *Session) ApplyPendingMarks() error {
	if s.destroyed {
		return ErrClosed
	}
	pending := s.pages.Pending()
	if len(pending) == 0 {
		return nil
	}
	pages := make([]engine.Page, 0, len(pending))
	for _, i := range pending {
		if p, ok := s.pages.At(i); ok {
			pages = append(pages, p)
		}
	}
	store := s.pages
	s.tasks.Submit(taskq.Func{
		WorkFn: func(ctx context.Context) error {
			for _, p := range pages {
				if ma, ok := p.(engine.MarkApplier); ok {
					if err := ma.ApplyMarks(); err != nil {
						return fmt.Errorf("apply marks on page %d: %w", p.Index(), err)
					}
				}
			}
			return nil
		},
		DoneFn: func(err error) {
			if s.aborted.Load() || store != s.pages {
				return
			}
			if err != nil {
				s.publish(Event{Kind: EventError, Code: CodeOf(err), Err: err})
				return
			}
			for _, i := range pending {
				s.pages.ClearPending(i)
				s.publish(Event{Kind: EventSelectionChanged, Start: i, End: i})
			}
		},
	})
	return nil
}

// Outline returns the document outline.
func (s *Session) Outline() ([]engine.OutlineItem, error) {
	if s.doc == nil || s.locked {
		return nil, ErrNotLoaded
	}
	return s.doc.Outline()
}

// Hit is one search match.
type Hit struct {
	Page   int
	Bounds engine.Rect
}

// Search looks for query on every loaded page.
func (s *Session) Search(query string) []Hit {
	var hits []Hit
	for i := 0; i < s.pages.Len(); i++ {
		p, _ := s.pages.At(i)
		for _, r := range p.Search(query) {
			hits = append(hits, Hit{Page: i, Bounds: r})
		}
	}
	return hits
}

// NotifyLayoutCompleted tells listeners a layout pass finished.
func (s *Session) NotifyLayoutCompleted() {
	s.publish(Event{Kind: EventLayoutCompleted})
}

// NotifySelection tells listeners the selection now spans start..end.
func (s *Session) NotifySelection(start, end int) {
	s.publish(Event{Kind: EventSelectionChanged, Start: start, End: end})
}

// Destroy aborts loading and releases the document. Pending background
// steps observe the abort flag and complete as no-ops; the page store and
// document are released once work queued before Destroy has drained.
// Calling it again does nothing.
func (s *Session) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.aborted.Store(true)
	s.logger.Info("closing document", "path", s.path)
	if s.scripts != nil {
		s.scripts.Close()
	}
	s.tasks.Submit(taskq.Func{
		DoneFn: func(error) { s.teardown() },
	})
}

func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.tasks.Stop()
	s.pages.ReleaseAll()
	closeDoc(s.doc)
	s.doc = nil
	s.closed = true
	s.events.close()
}
