package ui

import (
	"github.com/mattn/go-runewidth"
)

// truncate cuts value to limit cells with an ellipsis.
func truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	return runewidth.Truncate(value, limit, "…")
}

// truncateMiddle keeps the start and the (longer) end of value, so file
// names survive in long paths.
func truncateMiddle(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if runewidth.StringWidth(value) <= limit {
		return value
	}
	if limit <= 3 {
		return runewidth.Truncate(value, limit, "")
	}
	endLen := (limit - 1) * 2 / 3
	startLen := limit - 1 - endLen
	head := runewidth.Truncate(value, startLen, "")
	runes := []rune(value)
	tail := ""
	for i := len(runes) - 1; i >= 0; i-- {
		next := string(runes[i:])
		if runewidth.StringWidth(next) > endLen {
			break
		}
		tail = next
	}
	return head + "…" + tail
}
