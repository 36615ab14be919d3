package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the viewer.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding
	Confirm    key.Binding

	// Scrolling
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	PageDown key.Binding
	PageUp   key.Binding
	First    key.Binding
	Last     key.Binding
	NextPage key.Binding
	PrevPage key.Binding

	// Zoom
	ZoomIn   key.Binding
	ZoomOut  key.Binding
	FitWidth key.Binding

	// Text size (reflowable documents)
	TextBigger  key.Binding
	TextSmaller key.Binding

	// Search
	Search    key.Binding
	NextMatch key.Binding
	PrevMatch key.Binding

	// Panels and document actions
	Outline    key.Binding
	PageList   key.Binding
	Logs       key.Binding
	LogLevel   key.Binding
	Reload     key.Binding
	ApplyMarks key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close panel"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Scroll down"),
		),
		Left: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/left", "Scroll left"),
		),
		Right: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/right", "Scroll right"),
		),
		PageDown: key.NewBinding(
			key.WithKeys(" ", "pgdown"),
			key.WithHelp("space", "Screen down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("b", "pgup"),
			key.WithHelp("b", "Screen up"),
		),
		First: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "First page"),
		),
		Last: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Last page"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("J", "ctrl+d"),
			key.WithHelp("J", "Next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("K", "ctrl+u"),
			key.WithHelp("K", "Previous page"),
		),

		ZoomIn: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Zoom in"),
		),
		ZoomOut: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "Zoom out"),
		),
		FitWidth: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "Fit width"),
		),
		TextBigger: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Larger text"),
		),
		TextSmaller: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Smaller text"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "Previous match"),
		),

		Outline: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Outline"),
		),
		PageList: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Page list"),
		),
		Logs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Log"),
		),
		LogLevel: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle log level"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Reload"),
		),
		ApplyMarks: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Apply redactions"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Outline, k.FitWidth, k.Help, k.Quit}
}

// FullHelp returns key bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up, k.Left, k.Right, k.PageDown, k.PageUp, k.First, k.Last, k.NextPage, k.PrevPage},
		{k.ZoomIn, k.ZoomOut, k.FitWidth, k.TextBigger, k.TextSmaller},
		{k.Search, k.NextMatch, k.PrevMatch},
		{k.Outline, k.PageList, k.Logs, k.Reload, k.ApplyMarks},
		{k.CycleTheme, k.Help, k.Quit},
	}
}

// helpTitles names the FullHelp groups.
var helpTitles = []string{"Scrolling", "Zoom", "Search", "Document", "General"}
