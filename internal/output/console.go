// Package output renders human-facing console text: banners, cycle tables
// and the colored status marks used by the CLI.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Console writes styled lines to a terminal or plain lines to anything else.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer

	title   lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
}

// NewConsole creates a console bound to w. Color is used only when w is a
// terminal and noColor is false.
func NewConsole(w io.Writer, noColor bool) *Console {
	r := lipgloss.NewRenderer(w)
	if noColor || !IsTerminal(w) || os.Getenv("NO_COLOR") != "" {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Console{
		w:        w,
		renderer: r,
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:       r.NewStyle().Foreground(lipgloss.Color("10")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("9")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("8")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Colored reports whether styles emit escape sequences.
func (c *Console) Colored() bool {
	return c.renderer.ColorProfile() != termenv.Ascii
}

// Title prints a bold heading.
func (c *Console) Title(s string) {
	c.Textln("%s", c.title.Render(s))
}

// Success prints a line prefixed with a check mark.
func (c *Console) Success(format string, args ...any) {
	c.mark(c.ok, "✓", format, args...)
}

// Failure prints a line prefixed with a cross.
func (c *Console) Failure(format string, args ...any) {
	c.mark(c.failed, "✗", format, args...)
}

// Warning prints a line prefixed with an exclamation mark.
func (c *Console) Warning(format string, args ...any) {
	c.mark(c.warning, "!", format, args...)
}

// Muted prints a dimmed line.
func (c *Console) Muted(format string, args ...any) {
	c.Textln("%s", c.muted.Render(sprintf(format, args...)))
}

func (c *Console) mark(style lipgloss.Style, sym, format string, args ...any) {
	c.Textln("%s %s", style.Render(sym), sprintf(format, args...))
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// LogLine prints a log line, colored by level.
func (c *Console) LogLine(level slog.Level, line string) {
	switch {
	case level >= slog.LevelError:
		line = c.failed.Render(line)
	case level >= slog.LevelWarn:
		line = c.warning.Render(line)
	case level < slog.LevelInfo:
		line = c.muted.Render(line)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}
