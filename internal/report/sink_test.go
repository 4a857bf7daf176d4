package report

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/output"
)

func newTestSink(t *testing.T, verbose bool) (*Sink, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	s, err := NewSink(filepath.Join(t.TempDir(), "logs"), output.NewConsole(&console, true), verbose)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local) }
	t.Cleanup(func() { _ = s.Close() })
	return s, &console
}

func readLog(t *testing.T, s *Sink, identity string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.Dir, identity+".log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestLoggerLineFormat(t *testing.T) {
	s, console := newTestSink(t, true)
	log := s.Logger("session_1")

	log.Info("clicking verify", "attempt", 2)
	log.Warn("callback rejected", "error", errors.New("bad data"))

	want := "2025-03-09 14:05:07 | session_1: clicking verify attempt=2\n" +
		"2025-03-09 14:05:07 | session_1: callback rejected error=\"bad data\"\n"
	if got := readLog(t, s, "session_1"); got != want {
		t.Errorf("log file:\n%s\nwant:\n%s", got, want)
	}
	if console.String() != want {
		t.Errorf("console echo = %q", console.String())
	}
}

func TestLoggerAppends(t *testing.T) {
	s, _ := newTestSink(t, false)
	s.Logger("session_2").Info("first")
	s.Logger("session_2").Info("second")

	got := readLog(t, s, "session_2")
	if strings.Count(got, "\n") != 2 || !strings.HasSuffix(got, "session_2: second\n") {
		t.Errorf("unexpected log content %q", got)
	}
}

func TestQuietSinkDoesNotEcho(t *testing.T) {
	s, console := newTestSink(t, false)
	s.Logger("session_3").Info("hello")
	if console.Len() != 0 {
		t.Errorf("expected no console output, got %q", console.String())
	}
}

func TestMainLogger(t *testing.T) {
	s, console := newTestSink(t, true)
	s.Main().Info("summary saved", "path", "logs/summary.log")

	want := "2025-03-09 14:05:07 | main: summary saved path=logs/summary.log\n"
	if got := readLog(t, s, "main"); got != want {
		t.Errorf("main.log = %q", got)
	}
	if console.String() != want {
		t.Errorf("console = %q", console.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	s, _ := newTestSink(t, false)
	log := s.Logger("session_4")
	log.Debug("hidden")
	log.Info("shown")

	if got := readLog(t, s, "session_4"); strings.Contains(got, "hidden") {
		t.Errorf("debug line written at info level: %q", got)
	}

	s.Level = slog.LevelDebug
	log.Debug("now visible")
	if got := readLog(t, s, "session_4"); !strings.Contains(got, "now visible") {
		t.Errorf("debug line missing: %q", got)
	}
}

func TestWithAttrsAndGroup(t *testing.T) {
	s, _ := newTestSink(t, false)
	log := s.Logger("session_5").With("cycle", 3).WithGroup("join")
	log.Info("joined", "target", "somechannel", "wait", 18*time.Second)

	want := "2025-03-09 14:05:07 | session_5: joined cycle=3 join.target=somechannel join.wait=18s\n"
	if got := readLog(t, s, "session_5"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIdentityFileNameSanitized(t *testing.T) {
	s, _ := newTestSink(t, false)
	s.Logger("../escape").Info("x")

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file in log dir, got %d", len(entries))
	}
	if strings.Contains(entries[0].Name(), "/") {
		t.Errorf("unsafe file name %q", entries[0].Name())
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	s, _ := newTestSink(t, false)
	log := s.Logger("session_6")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				log.Info("tick", "n", j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(readLog(t, s, "session_6"), "\n"), "\n")
	if len(lines) != 200 {
		t.Fatalf("expected 200 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "2025-03-09 14:05:07 | session_6: tick n=") {
			t.Fatalf("corrupted line %q", l)
		}
	}
}

func TestLoggingAfterClose(t *testing.T) {
	s, console := newTestSink(t, true)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s.Logger("session_7").Info("late line")
	if !strings.Contains(console.String(), "late line") {
		t.Error("expected console echo after close")
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "session_7.log")); !os.IsNotExist(err) {
		t.Errorf("file created after close: %v", err)
	}
}
