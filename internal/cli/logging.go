package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Dicklesworthstone/missionctl/internal/config"
)

// newProcessLogger builds the stderr logger from the [logging] section.
func newProcessLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, slog.Level, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, level, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, level, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}
	return slog.New(h), level, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
