package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/folio/internal/state"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.overlay == overlayHelp {
		return m.renderHelp()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderBody(),
		m.renderFooter(),
	)
}

func (m Model) snapshot() state.Snapshot {
	if m.store == nil {
		return state.Snapshot{}
	}
	return m.store.Snapshot()
}

// renderBody renders the area between the header and the footer.
func (m Model) renderBody() string {
	cols, rows := m.frameArea()
	switch m.overlay {
	case overlayOutline:
		return m.renderOutline(m.width, rows)
	case overlayLogs:
		return m.renderLogs(m.width, rows)
	}

	frame := lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Background)).
		Width(cols).Height(rows).
		MaxWidth(cols).MaxHeight(rows).
		Render(m.frame.get(m.view.Frame(), m.view.Passes(), m.theme.Background))
	if !m.view.PageList() {
		return frame
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderPageList(rows), frame)
}

// renderPageList renders the page numbers around the current page.
func (m Model) renderPageList(rows int) string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.SurfaceAlt)
	s := m.view.Summary()
	pages := m.sess.Pages()

	first := max(min(s.Page-rows/2, s.Loaded-rows), 0)
	lines := make([]string, 0, rows)
	for i := first; i < s.Loaded && len(lines) < rows; i++ {
		mark := " "
		if pages.HasPending(i) {
			mark = "*"
		}
		label := fmt.Sprintf("%s%4d ", mark, i+1)
		if i == s.Page {
			lines = append(lines, styles.Selected.Render(label))
			continue
		}
		lines = append(lines, bg.Render(label, styles.MutedText))
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.SurfaceAlt)).
		Width(pageListWidth).Height(rows).
		MaxWidth(pageListWidth).MaxHeight(rows).
		Render(strings.Join(lines, "\n"))
}

// renderTitledBox draws content inside a bordered box with a title.
func (m Model) renderTitledBox(title, content string, width, height int) string {
	styles := m.theme.Styles()
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Width(max(width-2, 0)).
		Height(max(height-2, 0)).
		MaxHeight(height)
	head := styles.AccentText.Bold(true).Render(title)
	return box.Render(head + "\n" + content)
}

// renderOutline renders the table of contents panel.
func (m Model) renderOutline(width, height int) string {
	styles := m.theme.Styles()
	visible := max(height-3, 1)
	first := max(min(m.outlineSel-visible/2, len(m.outline)-visible), 0)
	inner := max(width-4, 1)

	var b strings.Builder
	for i := first; i < len(m.outline) && i < first+visible; i++ {
		it := m.outline[i]
		target := it.URI
		if it.Page >= 0 {
			target = fmt.Sprintf("%d", it.Page+1)
		}
		indent := strings.Repeat("  ", max(it.Level, 0))
		title := truncate(indent+it.Title, max(inner-lipgloss.Width(target)-1, 1))
		pad := max(inner-lipgloss.Width(title)-lipgloss.Width(target), 1)
		line := title + strings.Repeat(" ", pad) + target
		if i == m.outlineSel {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(title) + strings.Repeat(" ", pad) + styles.MutedText.Render(target))
		}
		if i < len(m.outline)-1 {
			b.WriteString("\n")
		}
	}
	return m.renderTitledBox("Outline", b.String(), width, height)
}
