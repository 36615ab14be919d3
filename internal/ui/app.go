package ui

import (
	"context"
	"image"
	"log/slog"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/folio/internal/bridge"
	"github.com/five82/folio/internal/engine"
	"github.com/five82/folio/internal/loop"
	"github.com/five82/folio/internal/session"
	"github.com/five82/folio/internal/state"
	"github.com/five82/folio/internal/viewer"
)

// overlay is the panel drawn over or instead of the page frame.
type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayPassword
	overlaySearch
	overlayOutline
	overlayLogs
)

const (
	headerRows = 1
	footerRows = 1
	// pageListWidth is the width of the page list sidebar in cells.
	pageListWidth = 7
	// lineStep is the pixel distance of one j/k press, one text row.
	lineStep = 2
	// wheelStep is the pixel distance of one wheel notch.
	wheelStep = 6

	zoomStep          = 1.25
	pinchStep         = 1.1
	pinchIdle         = 300 * time.Millisecond
	doubleClickWindow = 350 * time.Millisecond
)

// clipboardWrite copies external link targets; tests replace it.
var clipboardWrite = clipboard.WriteAll

// Options configures the UI.
type Options struct {
	Context context.Context
	// Queue is drained by the update loop; every viewer and session call
	// happens there.
	Queue  *loop.Queue
	Viewer *viewer.Viewer
	Bridge *bridge.Bridge
	Store  *state.Store
	Title  string
	// Password is tried once before the prompt opens.
	Password string
	// LogPath is folio's log file for the log overlay; empty disables it.
	LogPath string
	Logger  *slog.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx      context.Context
	queue    *loop.Queue
	view     *viewer.Viewer
	sess     *session.Session
	bridge   *bridge.Bridge
	store    *state.Store
	logger   *slog.Logger
	title    string
	password string
	logPath  string

	keys    keyMap
	help    help.Model
	theme   Theme
	width   int
	height  int
	ready   bool
	overlay overlay
	notice  bridge.Notice

	input   textinput.Model
	spinner spinner.Model

	outline    []engine.OutlineItem
	outlineSel int

	logLevel slog.Level
	logView  viewport.Model

	pinching    bool
	pinchSeq    int
	clickSeq    int
	clickAt     image.Point
	clickTime   time.Time
	clickQueued bool

	frame *frameCache
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		ctx:      ctx,
		queue:    opts.Queue,
		view:     opts.Viewer,
		sess:     opts.Viewer.Session(),
		bridge:   opts.Bridge,
		store:    opts.Store,
		logger:   logger.With("component", "ui"),
		title:    opts.Title,
		password: opts.Password,
		logPath:  opts.LogPath,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		theme:    GetTheme(opts.Bridge.Theme()),
		spinner:  sp,
		logLevel: slog.LevelInfo,
		frame:    &frameCache{},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitTask(m.ctx, m.queue),
		m.bridge.Listen(),
		m.spinner.Tick,
	)
}

// Messages

// taskMsg carries one closure posted to the interactive queue.
type taskMsg func()

// pinchEndMsg ends a wheel pinch once the wheel has been idle.
type pinchEndMsg struct{ seq int }

// clickMsg fires a single click once the double click window has passed.
type clickMsg struct {
	seq int
	p   image.Point
}

// Commands

func waitTask(ctx context.Context, q *loop.Queue) tea.Cmd {
	return func() tea.Msg {
		fn, ok := q.Next(ctx)
		if !ok {
			return nil
		}
		return taskMsg(fn)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskMsg:
		msg()
		return m, waitTask(m.ctx, m.queue)

	case bridge.EventMsg:
		cmd := m.applyNotice(m.bridge.Apply(msg.Event))
		return m, tea.Batch(cmd, m.bridge.Listen())

	case bridge.ClosedMsg:
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.resizeViewer()
		if m.overlay == overlayLogs {
			m.refreshLogs()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case pinchEndMsg:
		if m.pinching && msg.seq == m.pinchSeq {
			m.pinching = false
			m.view.ScaleEnd()
		}
		return m, nil

	case clickMsg:
		if m.clickQueued && msg.seq == m.clickSeq {
			m.clickQueued = false
			m.tap(msg.p)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.overlay == overlayPassword || m.overlay == overlaySearch {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// applyNotice shows what the bridge reported.
func (m *Model) applyNotice(n bridge.Notice) tea.Cmd {
	switch n.Kind {
	case bridge.NoticeNone:
		return nil
	case bridge.NoticePassword:
		if pw := m.password; pw != "" {
			m.password = ""
			m.sess.ProvidePassword(pw)
			return nil
		}
		return m.openInput(overlayPassword)
	case bridge.NoticeFatal:
		m.overlay = overlayNone
	}
	if n.Text != "" {
		m.logger.Debug("notice", "kind", n.Kind, "text", n.Text)
	}
	m.notice = n
	return nil
}

func (m *Model) info(text string) {
	m.notice = bridge.Notice{Kind: bridge.NoticeInfo, Text: text}
}

func (m *Model) fail(err error) {
	m.notice = bridge.Notice{Kind: bridge.NoticeError, Text: err.Error()}
}

// frameArea returns the cell size of the page frame.
func (m Model) frameArea() (cols, rows int) {
	cols = m.width
	if m.view.PageList() {
		cols -= pageListWidth
	}
	rows = m.height - headerRows - footerRows
	return max(cols, 0), max(rows, 0)
}

// frameOrigin is the screen cell of the frame's top left corner.
func (m Model) frameOrigin() image.Point {
	x := 0
	if m.view.PageList() {
		x = pageListWidth
	}
	return image.Pt(x, headerRows)
}

func (m *Model) resizeViewer() {
	cols, rows := m.frameArea()
	sz := frameSize(cols, rows)
	m.view.Resize(sz.X, sz.Y)
}

// framePoint maps a screen cell to a viewport pixel.
func (m Model) framePoint(x, y int) (image.Point, bool) {
	o := m.frameOrigin()
	cols, rows := m.frameArea()
	col, row := x-o.X, y-o.Y
	if col < 0 || row < 0 || col >= cols || row >= rows {
		return image.Point{}, false
	}
	return cellToPixel(col, row), true
}

// quit saves the viewing state and ends the program.
func (m *Model) quit() tea.Cmd {
	if err := m.bridge.SaveState(); err != nil {
		m.logger.Warn("save view state", "error", err)
	}
	return tea.Quit
}

// tap handles a single click in the frame.
func (m *Model) tap(p image.Point) {
	res := m.view.Tap(p)
	switch res.Kind {
	case viewer.TapInternalLink:
		m.info("link to page " + strconv.Itoa(res.Page+1))
	case viewer.TapExternalLink:
		if err := clipboardWrite(res.URI); err != nil {
			m.fail(err)
			return
		}
		m.info("link copied: " + res.URI)
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		return nil
	}
	return err
}
