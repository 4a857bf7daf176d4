package mission

import "time"

// Settings holds the mission tunables. It uses plain values so callers can
// build it from any configuration source.
type Settings struct {
	StartSettle     time.Duration
	BotStartSettle  time.Duration
	JoinWait        time.Duration
	JoinFailWait    time.Duration
	RetryWait       time.Duration
	RetryCount      int
	HistoryLimit    int
	CallbackTimeout time.Duration
	ActionJitterMin time.Duration
	ActionJitterMax time.Duration
	VerifyJitterMin time.Duration
	VerifyJitterMax time.Duration
	SkipWait        time.Duration

	// CompletionMarker is matched case-insensitively against message text.
	CompletionMarker string

	// DirectLinkMarkers identify links that need no redirect resolution.
	DirectLinkMarkers []string

	// DirectLinkSchemes are URL prefixes that need no redirect resolution.
	DirectLinkSchemes []string

	// BotSuffix marks an identifier as a bot to be started rather than joined.
	BotSuffix string
}

// DefaultSettings mirrors the timings the mission bots tolerate in practice.
func DefaultSettings() Settings {
	return Settings{
		StartSettle:       3 * time.Second,
		BotStartSettle:    8 * time.Second,
		JoinWait:          18 * time.Second,
		JoinFailWait:      2 * time.Second,
		RetryWait:         20 * time.Second,
		RetryCount:        4,
		HistoryLimit:      50,
		CallbackTimeout:   40 * time.Second,
		ActionJitterMin:   500 * time.Millisecond,
		ActionJitterMax:   2 * time.Second,
		VerifyJitterMin:   1 * time.Second,
		VerifyJitterMax:   5 * time.Second,
		SkipWait:          3 * time.Second,
		CompletionMarker:  "задание выполнено",
		DirectLinkMarkers: []string{"t.me/", "telegram.me"},
		DirectLinkSchemes: []string{"tg:"},
		BotSuffix:         "bot",
	}
}
