package bridge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/enginetest"
	"github.com/five82/folio/internal/layout"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/render"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/state"
	"github.com/five82/folio/internal/viewer"
	"github.com/five82/folio/internal/viewstate"
)

type harness struct {
	t       *testing.T
	q       *loop.Queue
	eng     *enginetest.Engine
	sess    *session.Session
	view    *viewer.Viewer
	store   *state.Store
	b       *Bridge
	notices []Notice
}

func newHarness(t *testing.T, spec enginetest.Spec, statePath string) *harness {
	t.Helper()
	h := &harness{t: t, q: loop.New(), eng: enginetest.New(), store: &state.Store{}}
	h.eng.Set("doc", spec)
	h.sess = session.Open("doc", session.Options{Engine: h.eng, Poster: h.q})
	rast := render.NewTileRasterizer(2, 32, nil)
	h.view = viewer.New(h.sess, viewer.Options{
		Poster:     h.q,
		Rasterizer: rast,
		Layout:     layout.Config{Gap: 4, MinScale: 0.15, MaxScale: 5, PixelsPerPoint: 1},
	})
	h.view.Resize(250, 300)
	h.b = New(Options{
		Session:   h.sess,
		Viewer:    h.view,
		Store:     h.store,
		StatePath: statePath,
		Now:       func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	t.Cleanup(func() {
		h.b.Close()
		h.view.Close()
		h.sess.Destroy()
		rast.Close()
	})

	// Stand-in for the bubbletea runtime: run each Listen command and
	// deliver its message on the interactive goroutine.
	go func() {
		for {
			msg := h.b.Listen()()
			ev, ok := msg.(EventMsg)
			if !ok {
				return
			}
			h.q.Post(func() {
				if n := h.b.Apply(ev.Event); n.Kind != NoticeNone {
					h.notices = append(h.notices, n)
				}
			})
		}
	}()
	return h
}

func (h *harness) runUntil(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.q.RunUntil(ctx, cond); err != nil {
		h.t.Fatalf("RunUntil: %v", err)
	}
}

func (h *harness) loaded(n int) func() bool {
	return func() bool {
		return h.view.Layout().PageCount() == n && h.sess.Completed() && h.store.Snapshot().Layout.Columns > 0
	}
}

func TestBridge_RecordsProgress(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(6, 100, 140)}, "")
	h.runUntil(h.loaded(6))

	snap := h.store.Snapshot()
	if snap.Path != "doc" || snap.Kind != "pdf" || snap.Loaded != 6 || snap.Pages != 6 || !snap.Complete {
		t.Fatalf("Snapshot = %+v, want 6 of 6 pdf pages complete", snap)
	}
	if snap.Layout.Columns != 2 {
		t.Fatalf("Layout.Columns = %d, want 2", snap.Layout.Columns)
	}
	if len(h.notices) != 0 {
		t.Fatalf("notices = %+v, want none", h.notices)
	}
}

func TestBridge_PasswordNotice(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"}, "")
	h.runUntil(func() bool { return len(h.notices) == 1 })
	if got := h.notices[0].Kind; got != NoticePassword {
		t.Fatalf("notice = %v, want NoticePassword", got)
	}
	if snap := h.store.Snapshot(); snap.LastError != nil {
		t.Fatalf("LastError = %v, want the prompt instead of an error", snap.LastError)
	}
	h.sess.ProvidePassword("pw")
	h.runUntil(h.loaded(2))
}

func TestBridge_FatalError(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(2, 100, 140), OpenErr: engine.ErrUnsupportedFormat}, "")
	h.runUntil(func() bool { return len(h.notices) == 1 })
	if got := h.notices[0].Kind; got != NoticeFatal {
		t.Fatalf("notice = %v, want NoticeFatal", got)
	}
	if !h.view.Disabled() {
		t.Fatal("viewer still enabled after a fatal error")
	}
	snap := h.store.Snapshot()
	if !snap.Fatal || snap.ErrorCode != session.CodeUnsupportedFormat.String() {
		t.Fatalf("Snapshot = %+v, want fatal unsupported format", snap)
	}
}

func TestBridge_ForcedReloadFallsBack(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	h.runUntil(h.loaded(10))

	h.eng.Set("doc", enginetest.Spec{Pages: enginetest.Uniform(4, 100, 140)})
	if err := h.sess.Reload("", true); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	h.runUntil(func() bool { return h.view.Layout().PageCount() == 4 && len(h.notices) > 0 })
	if got := h.notices[len(h.notices)-1]; got.Kind != NoticeInfo || got.Text != "reloaded" {
		t.Fatalf("notice = %+v, want reloaded", got)
	}
	if snap := h.store.Snapshot(); snap.Pages != 4 || snap.LastError != nil {
		t.Fatalf("Snapshot = %+v, want 4 pages without an error", snap)
	}
}

func TestBridge_SaveAndRestoreState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state", "state.toml")
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, statePath)
	if h.b.RestoreState() {
		t.Fatal("RestoreState found a record in a new file")
	}
	h.runUntil(h.loaded(10))
	h.view.ScrollBy(0, 200)
	h.runUntil(func() bool { return h.view.Layout().Scroll().Y == 200 })
	h.b.SetTheme("Nord")
	if err := h.b.SaveState(); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	f, err := viewstate.Load(statePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Theme != "Nord" {
		t.Fatalf("Theme = %q, want Nord", f.Theme)
	}
	rec, ok := f.Lookup("doc")
	if !ok {
		t.Fatal("no record for doc")
	}
	if rec.ScrollY != 200 || rec.Scale != h.view.Layout().Scale() || !rec.Updated.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("record = %+v", rec)
	}

	again := New(Options{Session: h.sess, Viewer: h.view, StatePath: statePath})
	defer again.Close()
	if again.Theme() != "Nord" || !again.RestoreState() {
		t.Fatal("second bridge did not find the saved state")
	}
}

func TestConvertState(t *testing.T) {
	st := viewer.State{Page: 3, Scale: 1.5, ScrollX: 7, ScrollY: 90, PageList: true}
	now := time.Unix(100, 0)
	rec := FromState("/a.pdf", st, now)
	if rec.Path != "/a.pdf" || !rec.Updated.Equal(now) {
		t.Fatalf("FromState = %+v", rec)
	}
	if got := ToState(rec); got != st {
		t.Fatalf("ToState(FromState(st)) = %+v, want %+v", got, st)
	}
}

func TestPump(t *testing.T) {
	q := loop.New()
	eng := enginetest.New()
	eng.Set("doc", enginetest.Spec{Pages: enginetest.Uniform(3, 100, 140)})
	sess := session.Open("doc", session.Options{Engine: eng, Poster: q})
	defer sess.Destroy()
	sub := sess.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var kinds []session.EventKind
	Pump(ctx, sub, q, func(ev session.Event) { kinds = append(kinds, ev.Kind) })
	if err := q.RunUntil(ctx, func() bool {
		return len(kinds) > 0 && kinds[len(kinds)-1] == session.EventDocComplete
	}); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if len(kinds) != 4 {
		t.Fatalf("events = %v, want three page loads and doc complete", kinds)
	}
}
