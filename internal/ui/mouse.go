package ui

import (
	"image"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// handleMouse maps wheel, pinch and clicks onto the viewer.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.overlay != overlayNone || m.view.Disabled() {
		return m, nil
	}
	p, inFrame := m.framePoint(msg.X, msg.Y)

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		if msg.Ctrl {
			if !inFrame {
				return m, nil
			}
			return m, m.pinch(msg.Button == tea.MouseButtonWheelUp, p)
		}
		dy := wheelStep
		if msg.Button == tea.MouseButtonWheelUp {
			dy = -wheelStep
		}
		if msg.Shift {
			m.view.ScrollBy(dy, 0)
		} else {
			m.view.ScrollBy(0, dy)
		}
		return m, nil
	case tea.MouseButtonWheelLeft:
		m.view.ScrollBy(-wheelStep, 0)
		return m, nil
	case tea.MouseButtonWheelRight:
		m.view.ScrollBy(wheelStep, 0)
		return m, nil
	}

	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft || !inFrame {
		return m, nil
	}
	return m, m.click(p, time.Now())
}

// pinch scales around p and schedules the end of the gesture.
func (m *Model) pinch(in bool, p image.Point) tea.Cmd {
	if !m.pinching {
		m.pinching = true
		m.view.ScaleBegin()
	}
	factor := pinchStep
	if !in {
		factor = 1 / pinchStep
	}
	m.view.Scale(factor, p)
	m.pinchSeq++
	seq := m.pinchSeq
	return tea.Tick(pinchIdle, func(time.Time) tea.Msg { return pinchEndMsg{seq: seq} })
}

// click turns presses into taps and double taps. A single tap waits out the
// double click window so a double click never follows a link first.
func (m *Model) click(p image.Point, now time.Time) tea.Cmd {
	m.clickSeq++
	if m.clickQueued && now.Sub(m.clickTime) <= doubleClickWindow && near(p, m.clickAt) {
		m.clickQueued = false
		if !m.view.DoubleTap(p) {
			m.tap(m.clickAt)
		}
		return nil
	}
	m.clickQueued = true
	m.clickAt = p
	m.clickTime = now
	seq := m.clickSeq
	return tea.Tick(doubleClickWindow, func(time.Time) tea.Msg { return clickMsg{seq: seq, p: p} })
}

// near reports whether two viewport points fall within one cell.
func near(a, b image.Point) bool {
	d := a.Sub(b)
	return d.X >= -1 && d.X <= 1 && d.Y >= -2 && d.Y <= 2
}
