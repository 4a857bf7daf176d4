package summary

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local)
	got := Render(at, []string{"session_1", "session_3"}, []string{"session_2"})
	want := "Summary generated at 2025-03-09 14:05:07\n\n" +
		"SUCCESS:\n- session_1\n- session_3\n\n" +
		"FAILED:\n- session_2\n"
	if got != want {
		t.Errorf("Render mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderEmptyLists(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	want := "Summary generated at 2025-01-01 00:00:00\n\nSUCCESS:\n\nFAILED:\n"
	if got := Render(at, nil, nil); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w := NewWriter(dir)
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local)

	path, err := w.WriteSummary(at, []string{"a"}, []string{"b"})
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if filepath.Base(path) != "summary_20250309_140507.log" {
		t.Errorf("unexpected file name %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != Render(at, []string{"a"}, []string{"b"}) {
		t.Errorf("file content = %q", data)
	}
}

func TestWriteSummarySameSecond(t *testing.T) {
	w := NewWriter(t.TempDir())
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local)

	first, err := w.WriteSummary(at, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.WriteSummary(at, []string{"x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("second summary overwrote the first: %s", first)
	}
	if filepath.Base(second) != "summary_20250309_140507_2.log" {
		t.Errorf("unexpected second name %s", second)
	}
}
