package util

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most n display cells, marking the cut with "...".
// Width is measured in terminal cells so emoji and CJK labels stay aligned.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= n {
		return s
	}
	if n <= 3 {
		return runewidth.Truncate(s, n, "")
	}
	return runewidth.Truncate(s, n, "...")
}

// OneLine collapses newlines and runs of whitespace so multi-line bot text
// fits on a single log line.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeFilename makes a string safe for use as a filename.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		"%", "_",
		" ", "_",
	)
	safe := replacer.Replace(strings.TrimSpace(name))
	safe = strings.TrimLeft(safe, ".")
	if safe == "" {
		return "_"
	}

	// Limit length while respecting UTF-8 boundaries
	if len(safe) > 64 {
		for i := 64; i >= 0; i-- {
			if utf8.RuneStart(safe[i]) {
				return safe[:i]
			}
		}
		return safe[:64]
	}
	return safe
}
