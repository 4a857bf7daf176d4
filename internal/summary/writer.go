// Package summary writes the per-cycle result artifact.
package summary

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/util"
)

// TimestampLayout is the human timestamp used in logs and summaries.
const TimestampLayout = "2006-01-02 15:04:05"

const fileLayout = "20060102_150405"

// Writer writes summary_YYYYMMDD_HHMMSS.log files into Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Render formats the summary body.
func Render(at time.Time, succeeded, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary generated at %s\n\n", at.Format(TimestampLayout))
	b.WriteString("SUCCESS:\n")
	for _, s := range succeeded {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nFAILED:\n")
	for _, s := range failed {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

// WriteSummary writes the summary for a cycle that finished at `at` and
// returns the file path. Two cycles finishing in the same second get
// distinct files.
func (w *Writer) WriteSummary(at time.Time, succeeded, failed []string) (string, error) {
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create summary dir: %w", err)
	}

	path, err := freePath(dir, "summary_"+at.Format(fileLayout))
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(path, []byte(Render(at, succeeded, failed)), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

func freePath(dir, base string) (string, error) {
	for i := 1; i < 100; i++ {
		name := base + ".log"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.log", base, i)
		}
		path := filepath.Join(dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat summary: %w", err)
		}
	}
	return "", fmt.Errorf("no free summary name for %s", base)
}
