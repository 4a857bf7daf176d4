// Package config loads missionctl settings from TOML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
	"github.com/Dicklesworthstone/missionctl/internal/pool"
	"github.com/Dicklesworthstone/missionctl/internal/util"
)

// Config is the full missionctl configuration.
type Config struct {
	LogDir  string `toml:"log_dir"`
	Verbose bool   `toml:"verbose"`

	Pool    PoolConfig    `toml:"pool"`
	Mission MissionConfig `toml:"mission"`
	Gateway GatewayConfig `toml:"gateway"`
	Logging LoggingConfig `toml:"logging"`
}

// PoolConfig controls the identity pool and the cycle loop.
type PoolConfig struct {
	MaxConcurrent        int    `toml:"max_concurrent"`
	CooldownSeconds      int    `toml:"cooldown_seconds"`
	ShutdownGraceSeconds int    `toml:"shutdown_grace_seconds"`
	RosterFile           string `toml:"roster_file"`
	NamePrefix           string `toml:"name_prefix"`
}

// MissionConfig holds the per-attempt timings.
type MissionConfig struct {
	StartSettleSeconds     int    `toml:"start_settle_seconds"`
	BotStartSettleSeconds  int    `toml:"bot_start_settle_seconds"`
	JoinWaitSeconds        int    `toml:"join_wait_seconds"`
	JoinFailWaitSeconds    int    `toml:"join_fail_wait_seconds"`
	RetryWaitSeconds       int    `toml:"retry_wait_seconds"`
	RetryCount             int    `toml:"retry_count"`
	HistoryLimit           int    `toml:"history_limit"`
	CallbackTimeoutSeconds int    `toml:"callback_timeout_seconds"`
	ActionJitterMinMs      int    `toml:"action_jitter_min_ms"`
	ActionJitterMaxMs      int    `toml:"action_jitter_max_ms"`
	VerifyJitterMinMs      int    `toml:"verify_jitter_min_ms"`
	VerifyJitterMaxMs      int    `toml:"verify_jitter_max_ms"`
	SkipWaitSeconds        int    `toml:"skip_wait_seconds"`
	CompletionMarker       string `toml:"completion_marker"`
	RedirectTimeoutSeconds int    `toml:"redirect_timeout_seconds"`

	Keywords KeywordsConfig `toml:"keywords"`
}

// KeywordsConfig adds button label keywords on top of the built-in table.
type KeywordsConfig struct {
	Join   []string `toml:"join"`
	Verify []string `toml:"verify"`
	Skip   []string `toml:"skip"`
}

// GatewayConfig points at the session gateway that holds the chat sessions.
type GatewayConfig struct {
	URL               string  `toml:"url"`
	Token             string  `toml:"token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// LoggingConfig selects the process log handler.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultGatewayURL is the gateway address used when none is configured.
const DefaultGatewayURL = "http://127.0.0.1:8765"

// Default returns the default configuration.
func Default() *Config {
	ms := mission.DefaultSettings()
	ps := pool.DefaultSettings()
	return &Config{
		LogDir:  "logs",
		Verbose: true,
		Pool: PoolConfig{
			MaxConcurrent:        ps.MaxConcurrent,
			CooldownSeconds:      int(ps.Cooldown / time.Second),
			ShutdownGraceSeconds: int(ps.ShutdownGrace / time.Second),
			NamePrefix:           "session_",
		},
		Mission: MissionConfig{
			StartSettleSeconds:     seconds(ms.StartSettle),
			BotStartSettleSeconds:  seconds(ms.BotStartSettle),
			JoinWaitSeconds:        seconds(ms.JoinWait),
			JoinFailWaitSeconds:    seconds(ms.JoinFailWait),
			RetryWaitSeconds:       seconds(ms.RetryWait),
			RetryCount:             ms.RetryCount,
			HistoryLimit:           ms.HistoryLimit,
			CallbackTimeoutSeconds: seconds(ms.CallbackTimeout),
			ActionJitterMinMs:      int(ms.ActionJitterMin / time.Millisecond),
			ActionJitterMaxMs:      int(ms.ActionJitterMax / time.Millisecond),
			VerifyJitterMinMs:      int(ms.VerifyJitterMin / time.Millisecond),
			VerifyJitterMaxMs:      int(ms.VerifyJitterMax / time.Millisecond),
			SkipWaitSeconds:        seconds(ms.SkipWait),
			CompletionMarker:       ms.CompletionMarker,
			RedirectTimeoutSeconds: 10,
		},
		Gateway: GatewayConfig{
			URL:               DefaultGatewayURL,
			RequestsPerSecond: 1,
			Burst:             3,
			TimeoutSeconds:    60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	if env := os.Getenv("MISSIONCTL_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "missionctl", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "missionctl", "config.toml")
}

// Load reads the config at path over the defaults, then applies .env and
// environment overrides (Env > TOML > Default). A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("MISSIONCTL_LOG_DIR"); dir != "" {
		cfg.LogDir = dir
	}
	if n, ok := envInt("MISSIONCTL_MAX_CONCURRENT"); ok && n > 0 {
		cfg.Pool.MaxConcurrent = n
	}
	if n, ok := envInt("MISSIONCTL_COOLDOWN_SECONDS"); ok && n >= 0 {
		cfg.Pool.CooldownSeconds = n
	}
	if n, ok := envInt("MISSIONCTL_RETRY_COUNT"); ok && n >= 0 {
		cfg.Mission.RetryCount = n
	}
	if url := os.Getenv("MISSIONCTL_GATEWAY_URL"); url != "" {
		cfg.Gateway.URL = url
	}
	if token := os.Getenv("MISSIONCTL_GATEWAY_TOKEN"); token != "" {
		cfg.Gateway.Token = token
	}
	if level := os.Getenv("MISSIONCTL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CreateDefault writes the default config to path (DefaultPath when empty)
// and refuses to overwrite an existing file.
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	var buffer strings.Builder
	if err := Print(Default(), &buffer); err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(path, []byte(buffer.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Print renders cfg as a commented TOML document.
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# missionctl configuration")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Directory for per-identity logs and cycle summaries")
	fmt.Fprintf(w, "log_dir = %q\n", cfg.LogDir)
	fmt.Fprintln(w, "# Echo mission trace lines to the console")
	fmt.Fprintf(w, "verbose = %t\n", cfg.Verbose)
	fmt.Fprintln(w)

	enc := toml.NewEncoder(w)
	enc.Indent = ""
	sections := []struct {
		comment string
		value   any
	}{
		{"Identity pool and cycle loop", struct {
			Pool PoolConfig `toml:"pool"`
		}{cfg.Pool}},
		{"Mission timings; keywords extend the built-in button labels", struct {
			Mission MissionConfig `toml:"mission"`
		}{cfg.Mission}},
		{"Session gateway", struct {
			Gateway GatewayConfig `toml:"gateway"`
		}{cfg.Gateway}},
		{"Process log (level: debug|info|warn|error, format: text|json)", struct {
			Logging LoggingConfig `toml:"logging"`
		}{cfg.Logging}},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "# %s\n", s.comment)
		if err := enc.Encode(s.value); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}

// MissionSettings converts the [mission] section.
func (c *Config) MissionSettings() mission.Settings {
	m := c.Mission
	s := mission.DefaultSettings()
	s.StartSettle = time.Duration(m.StartSettleSeconds) * time.Second
	s.BotStartSettle = time.Duration(m.BotStartSettleSeconds) * time.Second
	s.JoinWait = time.Duration(m.JoinWaitSeconds) * time.Second
	s.JoinFailWait = time.Duration(m.JoinFailWaitSeconds) * time.Second
	s.RetryWait = time.Duration(m.RetryWaitSeconds) * time.Second
	s.RetryCount = m.RetryCount
	s.HistoryLimit = m.HistoryLimit
	s.CallbackTimeout = time.Duration(m.CallbackTimeoutSeconds) * time.Second
	s.ActionJitterMin = time.Duration(m.ActionJitterMinMs) * time.Millisecond
	s.ActionJitterMax = time.Duration(m.ActionJitterMaxMs) * time.Millisecond
	s.VerifyJitterMin = time.Duration(m.VerifyJitterMinMs) * time.Millisecond
	s.VerifyJitterMax = time.Duration(m.VerifyJitterMaxMs) * time.Millisecond
	s.SkipWait = time.Duration(m.SkipWaitSeconds) * time.Second
	if m.CompletionMarker != "" {
		s.CompletionMarker = m.CompletionMarker
	}
	return s
}

// Classifier builds the button classifier with the configured extra keywords.
func (c *Config) Classifier() *mission.Classifier {
	return mission.NewClassifier(map[mission.Intent][]string{
		mission.IntentJoin:   c.Mission.Keywords.Join,
		mission.IntentVerify: c.Mission.Keywords.Verify,
		mission.IntentSkip:   c.Mission.Keywords.Skip,
	})
}

// PoolSettings converts the [pool] section. maxCycles comes from the command
// line, not the file.
func (c *Config) PoolSettings(maxCycles int) pool.Settings {
	return pool.Settings{
		MaxConcurrent: c.Pool.MaxConcurrent,
		Cooldown:      time.Duration(c.Pool.CooldownSeconds) * time.Second,
		ShutdownGrace: time.Duration(c.Pool.ShutdownGraceSeconds) * time.Second,
		MaxCycles:     maxCycles,
	}
}

// RedirectTimeout is the redirect resolver's HTTP timeout.
func (c *Config) RedirectTimeout() time.Duration {
	return time.Duration(c.Mission.RedirectTimeoutSeconds) * time.Second
}

// GatewayTimeout is the per-request gateway timeout.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// Validate checks the configuration and returns every problem found.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if strings.TrimSpace(cfg.LogDir) == "" {
		errs = append(errs, fmt.Errorf("log_dir: must not be empty"))
	}

	p := cfg.Pool
	if p.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("pool.max_concurrent: must be at least 1, got %d", p.MaxConcurrent))
	}
	if p.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("pool.cooldown_seconds: must not be negative, got %d", p.CooldownSeconds))
	}
	if p.ShutdownGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("pool.shutdown_grace_seconds: must not be negative, got %d", p.ShutdownGraceSeconds))
	}

	m := cfg.Mission
	nonNegative := map[string]int{
		"mission.start_settle_seconds":     m.StartSettleSeconds,
		"mission.bot_start_settle_seconds": m.BotStartSettleSeconds,
		"mission.join_wait_seconds":        m.JoinWaitSeconds,
		"mission.join_fail_wait_seconds":   m.JoinFailWaitSeconds,
		"mission.retry_wait_seconds":       m.RetryWaitSeconds,
		"mission.retry_count":              m.RetryCount,
		"mission.skip_wait_seconds":        m.SkipWaitSeconds,
		"mission.action_jitter_min_ms":     m.ActionJitterMinMs,
		"mission.verify_jitter_min_ms":     m.VerifyJitterMinMs,
	}
	nonNegativeKeys := make([]string, 0, len(nonNegative))
	for key := range nonNegative {
		nonNegativeKeys = append(nonNegativeKeys, key)
	}
	slices.Sort(nonNegativeKeys)
	for _, key := range nonNegativeKeys {
		if v := nonNegative[key]; v < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %d", key, v))
		}
	}
	if m.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("mission.history_limit: must be at least 1, got %d", m.HistoryLimit))
	}
	if m.CallbackTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("mission.callback_timeout_seconds: must be at least 1, got %d", m.CallbackTimeoutSeconds))
	}
	if m.RedirectTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("mission.redirect_timeout_seconds: must be at least 1, got %d", m.RedirectTimeoutSeconds))
	}
	if m.ActionJitterMaxMs < m.ActionJitterMinMs {
		errs = append(errs, fmt.Errorf("mission.action_jitter_max_ms: must be >= action_jitter_min_ms"))
	}
	if m.VerifyJitterMaxMs < m.VerifyJitterMinMs {
		errs = append(errs, fmt.Errorf("mission.verify_jitter_max_ms: must be >= verify_jitter_min_ms"))
	}

	g := cfg.Gateway
	if !strings.HasPrefix(g.URL, "http://") && !strings.HasPrefix(g.URL, "https://") {
		errs = append(errs, fmt.Errorf("gateway.url: must be an http(s) URL, got %q", g.URL))
	}
	if g.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("gateway.requests_per_second: must be positive, got %v", g.RequestsPerSecond))
	}
	if g.Burst < 1 {
		errs = append(errs, fmt.Errorf("gateway.burst: must be at least 1, got %d", g.Burst))
	}
	if g.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("gateway.timeout_seconds: must be at least 1, got %d", g.TimeoutSeconds))
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be \"text\" or \"json\", got %q", cfg.Logging.Format))
	}

	return errs
}
