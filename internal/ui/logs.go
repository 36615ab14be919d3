package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/five82/folio/internal/logtail"
)

// logOverlayLines bounds how much of the log file the overlay reads.
const logOverlayLines = 500

func (m *Model) openLogs() {
	if m.logPath == "" {
		m.info("logging to a file is disabled")
		return
	}
	m.overlay = overlayLogs
	m.refreshLogs()
	m.logView.GotoBottom()
}

// refreshLogs reloads the log tail into the overlay viewport.
func (m *Model) refreshLogs() {
	_, rows := m.frameArea()
	width, height := max(m.width-2, 1), max(rows-3, 1)
	if m.logView.Width == 0 {
		m.logView = viewport.New(width, height)
	}
	m.logView.Width = width
	m.logView.Height = height

	lines, err := logtail.Read(m.logPath, logOverlayLines)
	if err != nil {
		m.logView.SetContent(m.theme.Styles().DangerText.Render(err.Error()))
		return
	}
	lines = logtail.Filter(lines, m.logLevel)
	if len(lines) == 0 {
		m.logView.SetContent(m.theme.Styles().FaintText.Render("no log lines at this level"))
		return
	}

	styles := m.theme.Styles()
	var b strings.Builder
	for i, line := range lines {
		style := styles.MutedText
		if level, ok := logtail.Level(line); ok {
			style = styles.LevelStyle(level)
		}
		b.WriteString(style.Render(truncate(line, width)))
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	m.logView.SetContent(b.String())
}

// renderLogs renders the log overlay.
func (m Model) renderLogs(width, height int) string {
	title := fmt.Sprintf("Logs  %s  ≥%s", truncateMiddle(m.logPath, max(width-20, 10)), m.logLevel)
	return m.renderTitledBox(title, m.logView.View(), width, height)
}
