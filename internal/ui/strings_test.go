package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"report.pdf", 20, "report.pdf"},
		{"report.pdf", 5, "repo…"},
		{"report.pdf", 0, ""},
		{"日本語の文書", 7, "日本語…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := truncateMiddle("abcd", 10); got != "abcd" {
		t.Fatalf("truncateMiddle short = %q, want abcd", got)
	}
	if got := truncateMiddle("abcd", 2); got != "ab" {
		t.Fatalf("truncateMiddle limit<=3 = %q, want ab", got)
	}
	got := truncateMiddle("/home/user/papers/report.pdf", 16)
	if w := runewidth.StringWidth(got); w > 16 {
		t.Fatalf("truncateMiddle width = %d, want <= 16", w)
	}
	if got != "/home…report.pdf" {
		t.Fatalf("truncateMiddle = %q, want /home…report.pdf", got)
	}
}

func TestBgStyleRender(t *testing.T) {
	bg := NewBgStyle("#000000")
	style := lipgloss.NewStyle()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Page", "Page"},
		{"Page 1/10", "Page 1/10"},
		{"a  b", "a  b"},
	}
	for _, tt := range tests {
		if got := bg.Render(tt.in, style); got != tt.want {
			t.Fatalf("Render(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
