// Package report keeps the per-identity trace logs. Every identity gets an
// append-only <log_dir>/<identity>.log file with lines of the form
//
//	2006-01-02 15:04:05 | session_1: clicking verify attempt=2
//
// and, when verbose, the same line echoed to the console.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/output"
	"github.com/Dicklesworthstone/missionctl/internal/util"
)

// TimestampLayout matches the summary file timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// MainIdentity names the pool-level logger.
const MainIdentity = "main"

// Sink owns the open identity log files.
type Sink struct {
	Dir     string
	Console *output.Console
	Verbose bool
	Level   slog.Leveler

	mu     sync.Mutex
	files  map[string]*os.File
	closed bool

	now func() time.Time
}

// NewSink creates dir if needed and returns a sink writing into it.
func NewSink(dir string, console *output.Console, verbose bool) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Sink{
		Dir:     dir,
		Console: console,
		Verbose: verbose,
		files:   make(map[string]*os.File),
	}, nil
}

// Logger returns the trace logger for identity.
func (s *Sink) Logger(identity string) *slog.Logger {
	return slog.New(&lineHandler{sink: s, identity: identity})
}

// Main returns the pool-level logger, written to main.log.
func (s *Sink) Main() *slog.Logger {
	return s.Logger(MainIdentity)
}

// Close closes every open log file. Loggers keep working afterwards but
// only echo to the console.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s log: %w", name, err))
		}
	}
	s.files = nil
	s.closed = true
	return errors.Join(errs...)
}

func (s *Sink) enabled(level slog.Level) bool {
	threshold := slog.LevelInfo
	if s.Level != nil {
		threshold = s.Level.Level()
	}
	return level >= threshold
}

func (s *Sink) timestamp(t time.Time) string {
	if t.IsZero() {
		if s.now != nil {
			t = s.now()
		} else {
			t = time.Now()
		}
	}
	return t.Format(TimestampLayout)
}

// write appends line to the identity file and echoes it. Write failures are
// dropped: tracing must never fail a mission.
func (s *Sink) write(identity string, level slog.Level, line string) {
	s.mu.Lock()
	if !s.closed {
		if f := s.fileFor(identity); f != nil {
			_, _ = f.WriteString(line + "\n")
		}
	}
	s.mu.Unlock()

	if s.Verbose && s.Console != nil {
		s.Console.LogLine(level, line)
	}
}

// fileFor must be called with s.mu held.
func (s *Sink) fileFor(identity string) *os.File {
	if f, ok := s.files[identity]; ok {
		return f
	}
	path := filepath.Join(s.Dir, util.SanitizeFilename(identity)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	s.files[identity] = f
	return f
}

type lineHandler struct {
	sink     *Sink
	identity string
	attrs    []slog.Attr
	group    string
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.sink.enabled(level)
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.sink.timestamp(r.Time))
	b.WriteString(" | ")
	b.WriteString(h.identity)
	b.WriteString(": ")
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})

	h.sink.write(h.identity, r.Level, b.String())
	return nil
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().Format(TimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if needsQuote(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r == ' ' || r == '=' || r == '"' || r < 0x20 {
			return true
		}
	}
	return false
}
