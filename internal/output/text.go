package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Text outputs plain text to the console writer
func (c *Console) Text(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// Textln outputs plain text with a newline to the console writer
func (c *Console) Textln(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Line outputs a blank line
func (c *Console) Line() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w)
}

// Table outputs tabular data in text format
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &Table{
		writer:  w,
		headers: headers,
		widths:  widths,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) {
			t.widths[i] = max(t.widths[i], runewidth.StringWidth(c))
		}
	}
	t.rows = append(t.rows, cols)
}

// Render outputs the table
func (t *Table) Render() {
	t.renderRow(t.headers)

	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	t.renderRow(seps)

	for _, row := range t.rows {
		t.renderRow(row)
	}
}

func (t *Table) renderRow(cols []string) {
	var b strings.Builder
	b.WriteString("  ")
	for i, w := range t.widths {
		if i > 0 {
			b.WriteString("  ")
		}
		col := ""
		if i < len(cols) {
			col = cols[i]
		}
		b.WriteString(runewidth.FillRight(col, w))
	}
	fmt.Fprintln(t.writer, strings.TrimRight(b.String(), " "))
}

// Pluralize returns singular or plural form based on count
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// CountStr returns "N item(s)" string
func CountStr(count int, singular, plural string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(count, singular, plural))
}
