package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/folio/internal/bridge"
)

// renderHeader renders the status bar with all information.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < 80
	sep := bg.Spaces(2)

	parts := []string{bg.Render("folio", styles.Logo)}

	titleWidth := 40
	if compact {
		titleWidth = 20
	}
	if m.title != "" {
		parts = append(parts, bg.Render(truncateMiddle(m.title, titleWidth), styles.Text))
	}

	snap := m.snapshot()
	s := m.view.Summary()
	switch {
	case snap.Fatal:
	case m.sess.AwaitingPassword():
		parts = append(parts, bg.Render("locked", styles.WarningText.Bold(true)))
	case s.Pages > 0:
		parts = append(parts,
			bg.Render("Page", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d/%d", s.Page+1, s.Pages), styles.Text))
		if s.Loaded < s.Pages {
			parts = append(parts,
				bg.Render(m.spinner.View(), styles.AccentText)+bg.Space()+
					bg.Render(fmt.Sprintf("%d%%", s.Loaded*100/s.Pages), styles.MutedText))
		}
		parts = append(parts, bg.Render(fmt.Sprintf("%.0f%%", s.Scale*100), styles.MutedText))
		if !compact && s.Columns > 1 {
			parts = append(parts, bg.Render(fmt.Sprintf("%d cols", s.Columns), styles.FaintText))
		}
		if s.Hits > 0 {
			parts = append(parts,
				bg.Render("Match", styles.MutedText)+bg.Space()+
					bg.Render(fmt.Sprintf("%d/%d", s.Hit+1, s.Hits), styles.AccentText))
		}
	default:
		parts = append(parts,
			bg.Render(m.spinner.View(), styles.AccentText)+bg.Space()+
				bg.Render("Opening...", styles.WarningText.Bold(true)))
	}
	if s.Rendering {
		parts = append(parts, bg.Render("●", styles.InfoText))
	}

	if snap.IsStale() {
		parts = append(parts, bg.Render("FILE UNREADABLE", styles.WarningText.Bold(true)))
	}
	if snap.LastError != nil {
		maxErr := 60
		if compact {
			maxErr = 30
		}
		label := "ERROR"
		if snap.ErrorCode != "" {
			label = strings.ToUpper(snap.ErrorCode)
		}
		parts = append(parts,
			bg.Render(label, styles.DangerText.Bold(true))+bg.Space()+
				bg.Render(truncate(snap.LastError.Error(), maxErr), styles.DangerText))
	}

	return styles.Header.Width(m.width).MaxHeight(headerRows).Render(strings.Join(parts, sep))
}

// renderFooter renders the prompt, the latest notice or the key hints.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	footer := styles.Footer.Width(m.width).MaxHeight(footerRows)

	switch m.overlay {
	case overlayPassword, overlaySearch:
		return footer.Render(m.input.View())
	}

	if m.notice.Kind != bridge.NoticeNone && m.notice.Text != "" {
		style := styles.InfoText
		switch m.notice.Kind {
		case bridge.NoticeError, bridge.NoticeFatal:
			style = styles.DangerText
		case bridge.NoticePassword:
			style = styles.WarningText
		}
		return footer.Render(bg.Render(truncate(m.notice.Text, max(m.width-2, 1)), style))
	}

	hints := m.help.ShortHelpView(m.keys.ShortHelp())
	theme := bg.Render("T", styles.AccentText) + bg.Sep(":") + bg.Render(m.theme.Name, styles.FaintText)
	gap := m.width - 2 - lipgloss.Width(hints) - lipgloss.Width(theme)
	if gap < 2 {
		return footer.Render(hints)
	}
	return footer.Render(hints + bg.Spaces(gap) + theme)
}
