package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/state"
	"github.com/five82/folio/internal/viewer"
	"github.com/five82/folio/internal/viewstate"
)

// EventMsg carries one session event into the bubbletea update loop.
type EventMsg struct {
	Event session.Event
}

// ClosedMsg reports that the session's event stream ended.
type ClosedMsg struct{}

// NoticeKind classifies what the host should show for an event.
type NoticeKind int

const (
	NoticeNone NoticeKind = iota
	NoticeInfo
	NoticeError
	// NoticePassword asks the host to prompt for a password.
	NoticePassword
	// NoticeFatal means the document is unusable; interaction is disabled.
	NoticeFatal
)

// Notice is the user-facing outcome of an event.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Options configure a Bridge.
type Options struct {
	Session *session.Session
	Viewer  *viewer.Viewer
	Store   *state.Store
	Logger  *slog.Logger
	// StatePath is the viewstate file; empty disables persistence.
	StatePath string
	// DocPath keys the saved viewing state; it defaults to the session path.
	DocPath string
	Now     func() time.Time
}

// Bridge routes session events to the viewer and the status store.
type Bridge struct {
	opts   Options
	logger *slog.Logger
	sub    *session.Subscription
	saved  viewstate.File
	now    func() time.Time
}

// New subscribes to the session. Pages already loaded are replayed through
// the subscription.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DocPath == "" {
		opts.DocPath = opts.Session.Path()
	}
	if opts.Store != nil {
		opts.Store.Open(opts.DocPath)
	}
	b := &Bridge{
		opts:   opts,
		logger: logger.With("component", "bridge"),
		sub:    opts.Session.Subscribe(),
		now:    opts.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if opts.StatePath != "" {
		f, err := viewstate.Load(opts.StatePath)
		if err != nil {
			b.logger.Warn("load view state", "error", err)
		}
		b.saved = f
	}
	return b
}

// Listen returns a command that waits for the next session event.
func (b *Bridge) Listen() tea.Cmd {
	events := b.sub.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return ClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Close stops event delivery.
func (b *Bridge) Close() { b.sub.Close() }

// Apply hands ev to the viewer, records it in the status store and returns
// what the user should see. It must run on the interactive goroutine.
func (b *Bridge) Apply(ev session.Event) Notice {
	sess := b.opts.Session
	if ev.Kind != session.EventLayoutCompleted {
		b.opts.Viewer.HandleEvent(ev)
	}
	switch ev.Kind {
	case session.EventPageLoad, session.EventDocComplete:
		b.progress()
	case session.EventReload:
		b.progress()
		if b.opts.Store != nil {
			b.opts.Store.ClearError()
		}
		return Notice{Kind: NoticeInfo, Text: "reloaded"}
	case session.EventLayoutCompleted:
		if b.opts.Store != nil {
			s := b.opts.Viewer.Summary()
			b.opts.Store.SetLayout(state.Layout{Page: s.Page, Columns: s.Columns, Scale: s.Scale})
		}
	case session.EventAlert:
		return Notice{Kind: NoticeInfo, Text: ev.Message}
	case session.EventError:
		return b.failure(ev, sess)
	}
	return Notice{}
}

func (b *Bridge) progress() {
	if b.opts.Store == nil {
		return
	}
	sess := b.opts.Session
	b.opts.Store.Progress(sess.Kind().String(), sess.Loaded(), sess.PageCount(), sess.Completed())
}

func (b *Bridge) failure(ev session.Event, sess *session.Session) Notice {
	switch {
	case ev.Code == session.CodeAborted:
		return Notice{}
	case ev.Code == session.CodePasswordRequired:
		return Notice{Kind: NoticePassword, Text: "password required"}
	case errors.Is(ev.Err, session.ErrReloadMismatch):
		// The page count changed under a forced reload; rebuild instead.
		if err := sess.Reload("", false); err != nil {
			b.logger.Warn("fallback reload", "error", err)
		}
		return Notice{}
	}
	if b.opts.Store != nil {
		b.opts.Store.Fail(ev.Code.String(), ev.Err, ev.Fatal)
	}
	text := ev.Code.String()
	if ev.Err != nil {
		text = fmt.Sprintf("%s: %v", ev.Code, ev.Err)
	}
	if ev.Fatal {
		return Notice{Kind: NoticeFatal, Text: text}
	}
	return Notice{Kind: NoticeError, Text: text}
}

// Theme returns the saved theme name.
func (b *Bridge) Theme() string { return b.saved.Theme }

// SetTheme records the theme to save.
func (b *Bridge) SetTheme(name string) { b.saved.Theme = name }

// RestoreState asks the viewer to restore the saved position of the
// document, if any.
func (b *Bridge) RestoreState() bool {
	rec, ok := b.saved.Lookup(b.opts.DocPath)
	if !ok {
		return false
	}
	b.opts.Viewer.Restore(ToState(rec))
	return true
}

// SaveState records the viewer's position and writes the state file.
// Nothing is recorded before the first page is laid out.
func (b *Bridge) SaveState() error {
	if b.opts.StatePath == "" {
		return nil
	}
	if b.opts.Viewer.Layout().PageCount() > 0 {
		b.saved.Put(FromState(b.opts.DocPath, b.opts.Viewer.State(), b.now()))
	}
	if err := viewstate.Save(b.opts.StatePath, b.saved); err != nil {
		return fmt.Errorf("save view state: %w", err)
	}
	return nil
}

// ToState converts a saved record.
func ToState(r viewstate.Record) viewer.State {
	return viewer.State{Page: r.Page, Scale: r.Scale, ScrollX: r.ScrollX, ScrollY: r.ScrollY, PageList: r.PageList}
}

// FromState converts a viewing position into a record for path.
func FromState(path string, st viewer.State, now time.Time) viewstate.Record {
	return viewstate.Record{
		Path:     path,
		Page:     st.Page,
		Scale:    st.Scale,
		ScrollX:  st.ScrollX,
		ScrollY:  st.ScrollY,
		PageList: st.PageList,
		Updated:  now,
	}
}

// Pump forwards events from sub to fn on the goroutine served by poster
// until ctx is done or the subscription ends. It is the headless
// counterpart of Listen.
func Pump(ctx context.Context, sub *session.Subscription, poster loop.Poster, fn func(session.Event)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				poster.Post(func() { fn(ev) })
			}
		}
	}()
}
