package mission

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// Runner executes mission attempts for a single identity. A Runner is not
// safe for concurrent use; the pool creates one per identity per cycle.
type Runner struct {
	// Identity names the session in logs and outcomes.
	Identity string

	Client     ChatClient
	Resolver   Resolver
	Classifier *Classifier
	Settings   Settings

	// Logger receives the human-readable mission trace.
	Logger *slog.Logger

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// NewRunner creates a Runner with default settings and classifier.
func NewRunner(identity string, client ChatClient, resolver Resolver) *Runner {
	return &Runner{
		Identity:   identity,
		Client:     client,
		Resolver:   resolver,
		Classifier: NewClassifier(nil),
		Settings:   DefaultSettings(),
		Logger:     slog.Default(),
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) classifier() *Classifier {
	if r.Classifier == nil {
		r.Classifier = NewClassifier(nil)
	}
	return r.Classifier
}

// wait blocks for d or until ctx is done.
func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// waitJitter blocks for a random duration in [lo, hi].
func (r *Runner) waitJitter(ctx context.Context, lo, hi time.Duration) error {
	pick := r.jitter
	if pick == nil {
		pick = Jitter
	}
	return r.wait(ctx, pick(lo, hi))
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter returns a uniformly random duration in [lo, hi].
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// Run drives one mission attempt against bot and returns its outcome. All
// collaborator failures are logged and folded into the outcome.
func (r *Runner) Run(ctx context.Context, bot string) Outcome {
	started := time.Now()
	out := r.run(ctx, bot)
	out.Identity = r.Identity
	out.Success = out.Reason == ReasonCompleted
	out.Duration = time.Since(started)
	return out
}

func (r *Runner) run(ctx context.Context, bot string) Outcome {
	log := r.logger()
	s := r.Settings

	log.Info("fetching mission", "bot", bot)

	if err := r.Client.SendMessage(ctx, bot, "/start"); err != nil {
		log.Warn("/start failed", "bot", bot, "error", err)
	}
	if err := r.wait(ctx, s.StartSettle); err != nil {
		return canceled(err)
	}

	target, ok := r.findButtonMessage(ctx, bot)
	if !ok {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		log.Info("no mission buttons found")
		return Outcome{Reason: ReasonNoMission}
	}
	log.Debug("mission message found", "message_id", target.ID, "chat_id", target.ChatID)

	if err := r.waitJitter(ctx, s.ActionJitterMin, s.ActionJitterMax); err != nil {
		return canceled(err)
	}
	r.ClickButton(ctx, target)
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	if r.completed(ctx, bot) {
		log.Info("mission complete")
		return Outcome{Reason: ReasonCompleted}
	}

	// Retries press the captured message again; a re-fetch could pick up an
	// unrelated keyboard from the chat history.
	for attempt := 1; attempt <= s.RetryCount; attempt++ {
		log.Info("retrying verification", "attempt", attempt, "max", s.RetryCount)
		if err := r.waitJitter(ctx, s.ActionJitterMin, s.ActionJitterMax); err != nil {
			return canceledAfter(err, attempt-1)
		}
		r.ClickButton(ctx, target)
		if err := r.wait(ctx, s.RetryWait); err != nil {
			return canceledAfter(err, attempt)
		}
		if r.completed(ctx, bot) {
			log.Info("mission complete on retry", "attempt", attempt)
			return Outcome{Reason: ReasonCompleted, Retries: attempt}
		}
		if err := ctx.Err(); err != nil {
			return canceledAfter(err, attempt)
		}
	}

	if r.ClickSkipButton(ctx, target) {
		log.Info("mission skipped after retries")
	} else {
		log.Info("retries exhausted, skip unavailable")
	}
	return Outcome{Reason: ReasonExhausted, Retries: s.RetryCount}
}

func canceled(err error) Outcome {
	return Outcome{Reason: ReasonCanceled, Err: err}
}

func canceledAfter(err error, retries int) Outcome {
	return Outcome{Reason: ReasonCanceled, Err: err, Retries: retries}
}

// findButtonMessage returns the newest message in the history window that
// carries an inline keyboard.
func (r *Runner) findButtonMessage(ctx context.Context, bot string) (Message, bool) {
	msgs, err := r.Client.History(ctx, bot, r.Settings.HistoryLimit)
	if err != nil {
		r.logger().Warn("history fetch failed", "bot", bot, "error", err)
		return Message{}, false
	}
	for _, m := range msgs {
		if m.HasButtons() {
			return m, true
		}
	}
	return Message{}, false
}

// completed rescans the history window for the completion marker. The notice
// arrives as a new message, so the window is fetched fresh every time.
func (r *Runner) completed(ctx context.Context, bot string) bool {
	marker := strings.ToLower(r.Settings.CompletionMarker)
	if marker == "" {
		return false
	}
	msgs, err := r.Client.History(ctx, bot, r.Settings.HistoryLimit)
	if err != nil {
		r.logger().Warn("history fetch failed", "bot", bot, "error", err)
		return false
	}
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Text), marker) {
			return true
		}
	}
	return false
}
