package mission

import (
	"context"
	"errors"

	"github.com/Dicklesworthstone/missionctl/internal/util"
)

const maxLabelWidth = 40

// ClickButton runs one pass over the message keyboard. Every join button is
// followed; the first verify button ends the pass with its callback result.
func (r *Runner) ClickButton(ctx context.Context, msg Message) bool {
	log := r.logger()
	s := r.Settings
	c := r.classifier()

	for _, row := range msg.Rows {
		for _, btn := range row {
			switch c.Classify(btn.Text) {
			case IntentJoin:
				if btn.URL == "" {
					continue
				}
				log.Info("following join button", "label", label(btn.Text), "url", btn.URL)
				if r.ResolveAndJoin(ctx, btn.URL) {
					_ = r.wait(ctx, s.JoinWait)
				} else {
					_ = r.wait(ctx, s.JoinFailWait)
				}
				if ctx.Err() != nil {
					return false
				}

			case IntentVerify:
				if len(btn.Data) == 0 {
					continue
				}
				if err := r.waitJitter(ctx, s.VerifyJitterMin, s.VerifyJitterMax); err != nil {
					return false
				}
				log.Info("pressing verify button", "label", label(btn.Text))
				return r.AnswerCallback(ctx, msg.ChatID, msg.ID, btn.Data)
			}
		}
	}

	log.Debug("no verify button in message", "message_id", msg.ID)
	return false
}

// ClickSkipButton presses the first skip button carrying callback data.
func (r *Runner) ClickSkipButton(ctx context.Context, msg Message) bool {
	c := r.classifier()
	for _, row := range msg.Rows {
		for _, btn := range row {
			if c.Classify(btn.Text) != IntentSkip || len(btn.Data) == 0 {
				continue
			}
			if !r.AnswerCallback(ctx, msg.ChatID, msg.ID, btn.Data) {
				return false
			}
			r.logger().Info("skip accepted")
			_ = r.wait(ctx, r.Settings.SkipWait)
			return true
		}
	}
	return false
}

// AnswerCallback presses a callback button exactly once under the callback
// timeout. Failures are logged and reported as false.
func (r *Runner) AnswerCallback(ctx context.Context, chatID, messageID int64, data []byte) bool {
	log := r.logger()

	callCtx := ctx
	if r.Settings.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.Settings.CallbackTimeout)
		defer cancel()
	}

	err := r.Client.AnswerCallback(callCtx, chatID, messageID, data)
	switch {
	case err == nil:
		log.Info("callback accepted", "message_id", messageID)
		return true
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		log.Warn("callback timed out", "message_id", messageID, "timeout", r.Settings.CallbackTimeout)
	case ctx.Err() != nil:
		log.Warn("callback interrupted", "message_id", messageID, "error", ctx.Err())
	default:
		log.Warn("callback rejected", "message_id", messageID, "error", err)
	}
	return false
}

// label shortens a button label for a single log line.
func label(text string) string {
	return util.Truncate(util.OneLine(text), maxLabelWidth)
}
