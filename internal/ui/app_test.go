package ui

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/folio/internal/bridge"
	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/engine/enginetest"
	"github.com/five82/folio/internal/layout"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/render"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/state"
	"github.com/five82/folio/internal/viewer"
)

type harness struct {
	t    *testing.T
	q    *loop.Queue
	eng  *enginetest.Engine
	sess *session.Session
	view *viewer.Viewer
	b    *bridge.Bridge
	m    Model
}

// newHarness builds a model over a fake engine. The test goroutine plays
// the bubbletea runtime: queue closures and bridge events both run there.
func newHarness(t *testing.T, spec enginetest.Spec, statePath string) *harness {
	t.Helper()
	h := &harness{t: t, q: loop.New(), eng: enginetest.New()}
	h.eng.Set("doc", spec)
	h.sess = session.Open("doc", session.Options{Engine: h.eng, Poster: h.q})
	rast := render.NewTileRasterizer(2, 32, nil)
	h.view = viewer.New(h.sess, viewer.Options{
		Poster:     h.q,
		Rasterizer: rast,
		Layout:     layout.Config{Gap: 4, MinScale: 0.15, MaxScale: 5, PixelsPerPoint: 1},
	})
	store := &state.Store{}
	h.b = bridge.New(bridge.Options{Session: h.sess, Viewer: h.view, Store: store, StatePath: statePath, DocPath: "doc"})
	h.m = New(Options{Queue: h.q, Viewer: h.view, Bridge: h.b, Store: store, Title: "doc"})
	t.Cleanup(func() {
		h.b.Close()
		h.view.Close()
		h.sess.Destroy()
		rast.Close()
	})

	go func() {
		for {
			msg := h.b.Listen()()
			if _, ok := msg.(bridge.EventMsg); !ok {
				return
			}
			h.q.Post(func() { h.send(msg) })
		}
	}()
	h.send(tea.WindowSizeMsg{Width: 125, Height: 152})
	return h
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	model, cmd := h.m.Update(msg)
	h.m = model.(Model)
	return cmd
}

func (h *harness) key(s string) tea.Cmd {
	switch s {
	case "enter":
		return h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		return h.send(tea.KeyMsg{Type: tea.KeyEsc})
	case " ":
		return h.send(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")})
	}
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) runUntil(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.q.RunUntil(ctx, cond); err != nil {
		h.t.Fatalf("RunUntil: %v", err)
	}
}

func (h *harness) settled() bool {
	return h.q.Len() == 0 && !h.view.Layout().NeedsLayout() && !h.view.Summary().Rendering
}

func (h *harness) load(n int) {
	h.t.Helper()
	h.runUntil(func() bool {
		return h.view.Layout().PageCount() == n && h.sess.Completed() && h.view.Passes() > 0 && h.settled()
	})
}

// cellAt returns the screen cell whose lower pixel is p.
func (h *harness) cellAt(p image.Point) (x, y int) {
	o := h.m.frameOrigin()
	return p.X + o.X, p.Y/2 + o.Y
}

func (h *harness) press(p image.Point) tea.Cmd {
	x, y := h.cellAt(p)
	return h.send(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
}

func TestModel_ResizesViewer(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	if got, want := h.view.ViewportSize(), image.Pt(125, 300); got != want {
		t.Fatalf("viewport = %v, want %v", got, want)
	}
	h.load(10)
	h.key("p")
	if got, want := h.view.ViewportSize(), image.Pt(125-pageListWidth, 300); got != want {
		t.Fatalf("viewport with page list = %v, want %v", got, want)
	}
}

func TestModel_ScrollAndZoomKeys(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	h.load(10)

	h.key("j")
	h.key("j")
	h.runUntil(h.settled)
	if got := h.view.Layout().Scroll().Y; got != 2*lineStep {
		t.Fatalf("Scroll.Y = %d, want %d", got, 2*lineStep)
	}

	s0 := h.view.Layout().Scale()
	h.key("+")
	h.runUntil(h.settled)
	if got := h.view.Layout().Scale(); got <= s0 {
		t.Fatalf("Scale after zoom in = %v, want more than %v", got, s0)
	}
	h.key("w")
	h.runUntil(h.settled)
	if got := h.view.Layout().ContentSize().X; got < 120 || got > 125 {
		t.Fatalf("content width after fit = %d, want about 125", got)
	}
}

func TestModel_PasswordPrompt(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"}, "")
	h.runUntil(func() bool { return h.m.overlay == overlayPassword })

	h.key("pw")
	h.key("enter")
	if h.m.overlay != overlayNone {
		t.Fatalf("overlay = %v after enter, want none", h.m.overlay)
	}
	h.load(2)
}

func TestModel_WrongPasswordPromptsAgain(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Kind: engine.KindPDF, Pages: enginetest.Uniform(2, 100, 140), Password: "pw"}, "")
	h.runUntil(func() bool { return h.m.overlay == overlayPassword })

	h.key("nope")
	h.key("enter")
	h.runUntil(func() bool { return h.m.overlay == overlayPassword })
	if h.m.input.Value() != "" {
		t.Fatalf("prompt kept %q", h.m.input.Value())
	}
}

func TestModel_Search(t *testing.T) {
	spec := enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140), Text: map[int]string{7: "a needle here"}}
	h := newHarness(t, spec, "")
	h.load(10)

	h.key("/")
	if h.m.overlay != overlaySearch {
		t.Fatalf("overlay = %v, want search", h.m.overlay)
	}
	h.key("needle")
	h.key("enter")
	if got, want := h.m.notice.Text, `1 match for "needle"`; got != want {
		t.Fatalf("notice = %q, want %q", got, want)
	}
	if got := h.view.Summary().Hits; got != 1 {
		t.Fatalf("Hits = %d, want 1", got)
	}

	h.key("/")
	h.key("absent")
	h.key("enter")
	if got, want := h.m.notice.Text, `no matches for "absent"`; got != want {
		t.Fatalf("notice = %q, want %q", got, want)
	}
}

func TestModel_LinkClickCopies(t *testing.T) {
	var copied string
	old := clipboardWrite
	clipboardWrite = func(s string) error {
		copied = s
		return nil
	}
	t.Cleanup(func() { clipboardWrite = old })

	spec := enginetest.Spec{
		Kind:  engine.KindPDF,
		Pages: enginetest.Uniform(3, 100, 140),
		Links: map[int][]engine.Link{0: {
			{Bounds: engine.Rect{X0: 0, Y0: 70, X1: 100, Y1: 140}, Page: -1, URI: "https://example.com/"},
		}},
	}
	h := newHarness(t, spec, "")
	h.load(3)

	r, _ := h.view.Layout().PageRect(0)
	p := image.Pt((r.Min.X+r.Max.X)/2, r.Min.Y+r.Dy()*3/4)
	p.Y |= 1
	cmd := h.press(p)
	if cmd == nil || !h.m.clickQueued {
		t.Fatal("press did not queue a click")
	}
	if copied != "" {
		t.Fatal("link followed before the double click window passed")
	}
	h.send(cmd())
	if copied != "https://example.com/" {
		t.Fatalf("copied = %q, want the link target", copied)
	}
	if !strings.Contains(h.m.notice.Text, "https://example.com/") {
		t.Fatalf("notice = %q", h.m.notice.Text)
	}
}

func TestModel_DoubleClickZooms(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	h.load(10)

	s0 := h.view.Layout().Scale()
	p := image.Pt(60, 151)
	first := h.press(p)
	if second := h.press(p); second != nil {
		t.Fatal("second press queued another click")
	}
	h.runUntil(h.settled)
	if got := h.view.Layout().Scale(); got <= s0 {
		t.Fatalf("Scale = %v, want more than %v", got, s0)
	}
	// The stale single click timer must not tap.
	h.send(first())
	if h.m.clickQueued {
		t.Fatal("click still queued")
	}
}

func TestModel_PinchEndsWhenIdle(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	h.load(10)

	s0 := h.view.Layout().Scale()
	x, y := h.cellAt(image.Pt(60, 151))
	wheel := tea.MouseMsg{X: x, Y: y, Ctrl: true, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp}
	first := h.send(wheel)
	last := h.send(wheel)
	if !h.m.pinching || !h.view.Layout().Scaling() {
		t.Fatal("ctrl+wheel did not start a pinch")
	}
	if got := h.view.Layout().Scale(); got <= s0 {
		t.Fatalf("Scale during pinch = %v, want more than %v", got, s0)
	}
	h.send(first())
	if !h.m.pinching {
		t.Fatal("stale timer ended the pinch")
	}
	h.send(last())
	if h.m.pinching || h.view.Layout().Scaling() {
		t.Fatal("pinch still active after the wheel went idle")
	}
	h.runUntil(h.settled)
}

func TestModel_CycleTheme(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(2, 100, 140)}, "")
	if h.m.theme.Name != "Dracula" {
		t.Fatalf("theme = %q, want Dracula", h.m.theme.Name)
	}
	h.key("T")
	if h.m.theme.Name != "Nightfox" || h.b.Theme() != "Nightfox" {
		t.Fatalf("theme = %q, bridge = %q, want Nightfox", h.m.theme.Name, h.b.Theme())
	}
}

func TestModel_OutlineFollowsEntry(t *testing.T) {
	spec := enginetest.Spec{
		Pages: enginetest.Uniform(10, 100, 140),
		Outline: []engine.OutlineItem{
			{Title: "Intro", Page: 0},
			{Level: 1, Title: "End", Page: 9},
		},
	}
	h := newHarness(t, spec, "")
	h.load(10)

	h.key("o")
	if h.m.overlay != overlayOutline || len(h.m.outline) != 2 {
		t.Fatalf("overlay = %v with %d entries, want the outline", h.m.overlay, len(h.m.outline))
	}
	if !strings.Contains(h.m.View(), "End") {
		t.Fatal("outline panel does not list its entries")
	}
	h.key("j")
	h.key("enter")
	h.runUntil(h.settled)
	r, _ := h.view.Layout().PageRect(9)
	if r.Min.Y < 0 || r.Max.Y > 300 {
		t.Fatalf("page 10 at %v after following the outline", r)
	}
}

func TestModel_View(t *testing.T) {
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, "")
	h.load(10)

	out := h.m.View()
	if !strings.Contains(out, "folio") || !strings.Contains(out, "Page 1/10") {
		t.Fatalf("header missing from view:\n%s", strings.SplitN(out, "\n", 2)[0])
	}
	if got := strings.Count(out, "\n") + 1; got != 152 {
		t.Fatalf("view rows = %d, want 152", got)
	}
	h.key("?")
	if !strings.Contains(h.m.View(), "Keyboard Shortcuts") {
		t.Fatal("help overlay not shown")
	}
}

func TestModel_QuitSavesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	h := newHarness(t, enginetest.Spec{Pages: enginetest.Uniform(10, 100, 140)}, path)
	h.load(10)

	cmd := h.key("q")
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("quit command did not quit")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state not saved: %v", err)
	}
}
