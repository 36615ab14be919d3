package ui

import (
	"log/slog"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	want := []string{"Dracula", "Nightfox", "Kanagawa", "Slate"}
	if len(names) != len(want) {
		t.Fatalf("ThemeNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ThemeNames() = %v, want %v", names, want)
		}
		if th := GetTheme(names[i]); th.Name != names[i] {
			t.Fatalf("GetTheme(%q).Name = %q", names[i], th.Name)
		}
	}
}

func TestNextTheme(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Dracula", "Nightfox"},
		{"Slate", "Dracula"},
		{"Unknown", "Dracula"},
	}
	for _, tt := range tests {
		if got := NextTheme(tt.in); got != tt.want {
			t.Fatalf("NextTheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetTheme_Fallback(t *testing.T) {
	if got := GetTheme("Unknown").Name; got != "Dracula" {
		t.Fatalf("GetTheme(Unknown).Name = %q, want Dracula (fallback)", got)
	}
}

func TestLevelStyle(t *testing.T) {
	th := GetTheme("Slate")
	styles := th.Styles()
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, th.Info},
		{slog.LevelInfo, th.Success},
		{slog.LevelWarn, th.Warning},
		{slog.LevelError, th.Danger},
		{slog.LevelError + 4, th.Danger},
	}
	for _, tt := range tests {
		got := styles.LevelStyle(tt.level).GetForeground()
		if got != lipgloss.TerminalColor(lipgloss.Color(tt.want)) {
			t.Fatalf("LevelStyle(%v) foreground = %v, want %v", tt.level, got, tt.want)
		}
	}
}
