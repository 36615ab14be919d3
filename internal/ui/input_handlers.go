package ui

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/folio/internal/bridge"
	"github.com/five82/folio/internal/session"
)

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case overlayHelp:
		// Any key closes help
		m.overlay = overlayNone
		return m, nil
	case overlayPassword, overlaySearch:
		return m.handleInputKey(msg)
	case overlayOutline:
		return m.handleOutlineKey(msg)
	case overlayLogs:
		return m.handleLogsKey(msg)
	}

	if m.notice.Kind != bridge.NoticeFatal {
		m.notice = bridge.Notice{}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.bridge.SetTheme(m.theme.Name)
		return m, nil
	case key.Matches(msg, m.keys.Logs):
		m.openLogs()
		return m, nil
	}

	if m.view.Disabled() {
		return m, nil
	}
	if m.sess.AwaitingPassword() && key.Matches(msg, m.keys.Confirm) {
		return m, m.openInput(overlayPassword)
	}

	v := m.view
	switch {
	case key.Matches(msg, m.keys.Down):
		v.ScrollBy(0, lineStep)
	case key.Matches(msg, m.keys.Up):
		v.ScrollBy(0, -lineStep)
	case key.Matches(msg, m.keys.Right):
		v.ScrollBy(lineStep, 0)
	case key.Matches(msg, m.keys.Left):
		v.ScrollBy(-lineStep, 0)
	case key.Matches(msg, m.keys.PageDown):
		v.PageDown()
	case key.Matches(msg, m.keys.PageUp):
		v.PageUp()
	case key.Matches(msg, m.keys.First):
		v.GoToPage(0)
	case key.Matches(msg, m.keys.Last):
		v.GoToPage(v.Layout().PageCount() - 1)
	case key.Matches(msg, m.keys.NextPage):
		v.NextPage()
	case key.Matches(msg, m.keys.PrevPage):
		v.PrevPage()
	case key.Matches(msg, m.keys.ZoomIn):
		v.Zoom(zoomStep)
	case key.Matches(msg, m.keys.ZoomOut):
		v.Zoom(1 / zoomStep)
	case key.Matches(msg, m.keys.FitWidth):
		v.FitWidth()
	case key.Matches(msg, m.keys.TextBigger):
		m.reflow(1)
	case key.Matches(msg, m.keys.TextSmaller):
		m.reflow(-1)
	case key.Matches(msg, m.keys.Search):
		return m, m.openInput(overlaySearch)
	case key.Matches(msg, m.keys.NextMatch):
		v.NextHit()
	case key.Matches(msg, m.keys.PrevMatch):
		v.PrevHit()
	case key.Matches(msg, m.keys.Outline):
		m.openOutline()
	case key.Matches(msg, m.keys.PageList):
		v.TogglePageList()
		m.resizeViewer()
	case key.Matches(msg, m.keys.Reload):
		if err := m.sess.Reload("", true); err != nil {
			m.fail(fmt.Errorf("reload: %w", err))
		}
	case key.Matches(msg, m.keys.ApplyMarks):
		m.applyMarks()
	}
	return m, nil
}

func (m *Model) reflow(delta float64) {
	err := m.view.ReflowText(delta)
	switch {
	case errors.Is(err, session.ErrNotReflowable):
		m.info("text size only changes in reflowable documents")
	case err != nil:
		m.fail(fmt.Errorf("reflow: %w", err))
	}
}

func (m *Model) applyMarks() {
	pending := len(m.sess.Pages().Pending())
	if err := m.view.ApplyMarks(); err != nil {
		m.fail(fmt.Errorf("apply redactions: %w", err))
		return
	}
	if pending == 0 {
		m.info("no pending redactions")
		return
	}
	m.info(fmt.Sprintf("applied redactions on %d pages", pending))
}

// openInput shows the password or search prompt in the footer.
func (m *Model) openInput(o overlay) tea.Cmd {
	in := textinput.New()
	in.CharLimit = 256
	switch o {
	case overlayPassword:
		in.Prompt = "password: "
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	default:
		in.Prompt = "/"
	}
	m.input = in
	m.overlay = o
	return m.input.Focus()
}

// handleInputKey feeds the footer prompt.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, m.quit()
	case tea.KeyEsc:
		if m.overlay == overlayPassword {
			m.info("document locked; press enter for the password prompt")
		}
		m.overlay = overlayNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := m.input.Value()
		o := m.overlay
		m.overlay = overlayNone
		m.input.Blur()
		if o == overlayPassword {
			m.sess.ProvidePassword(value)
			return m, nil
		}
		switch n := m.view.Search(value); {
		case value == "":
		case n == 0:
			m.info(fmt.Sprintf("no matches for %q", value))
		case n == 1:
			m.info(fmt.Sprintf("1 match for %q", value))
		default:
			m.info(fmt.Sprintf("%d matches for %q", n, value))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) openOutline() {
	items, err := m.sess.Outline()
	if err != nil {
		m.fail(fmt.Errorf("outline: %w", err))
		return
	}
	if len(items) == 0 {
		m.info("this document has no outline")
		return
	}
	m.outline = items
	m.outlineSel = 0
	cur := m.view.CurrentPage()
	for i, it := range items {
		if it.Page >= 0 && it.Page <= cur {
			m.outlineSel = i
		}
	}
	m.overlay = overlayOutline
}

// handleOutlineKey moves through the outline and follows entries.
func (m Model) handleOutlineKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Outline):
		m.overlay = overlayNone
	case key.Matches(msg, m.keys.Down):
		m.outlineSel = min(m.outlineSel+1, len(m.outline)-1)
	case key.Matches(msg, m.keys.Up):
		m.outlineSel = max(m.outlineSel-1, 0)
	case key.Matches(msg, m.keys.First):
		m.outlineSel = 0
	case key.Matches(msg, m.keys.Last):
		m.outlineSel = len(m.outline) - 1
	case key.Matches(msg, m.keys.Confirm):
		it := m.outline[m.outlineSel]
		m.overlay = overlayNone
		switch {
		case it.Page >= 0:
			m.view.GoToPage(it.Page)
		case it.URI != "":
			if err := clipboardWrite(it.URI); err != nil {
				m.fail(err)
				break
			}
			m.info("link copied: " + it.URI)
		}
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()
	}
	return m, nil
}

// logLevels is the cycle of minimum levels in the log overlay.
var logLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func nextLogLevel(l slog.Level) slog.Level {
	for i, level := range logLevels {
		if level == l {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return logLevels[0]
}

// handleLogsKey scrolls the log overlay.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Logs):
		m.overlay = overlayNone
		return m, nil
	case key.Matches(msg, m.keys.LogLevel):
		m.logLevel = nextLogLevel(m.logLevel)
		m.refreshLogs()
		return m, nil
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()
	}
	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}
