package mission

import (
	"context"
	"net/url"
	"strings"
)

// isDirectLink reports whether rawURL already points at the chat service and
// can skip redirect resolution.
func (r *Runner) isDirectLink(rawURL string) bool {
	for _, marker := range r.Settings.DirectLinkMarkers {
		if marker != "" && strings.Contains(rawURL, marker) {
			return true
		}
	}
	for _, scheme := range r.Settings.DirectLinkSchemes {
		if scheme != "" && strings.HasPrefix(rawURL, scheme) {
			return true
		}
	}
	return false
}

// ResolveAndJoin acts on a mission link. Bot links are started; anything else
// is joined via invite hash, then identifier, then the full resolved URL.
func (r *Runner) ResolveAndJoin(ctx context.Context, rawURL string) bool {
	log := r.logger()
	resolved := rawURL

	if !r.isDirectLink(rawURL) && r.Resolver != nil {
		final, err := r.Resolver.Resolve(ctx, rawURL)
		if err != nil {
			log.Warn("redirect resolution failed, using original link", "url", rawURL, "error", err)
		} else if final != "" {
			resolved = final
			log.Info("redirect resolved", "url", resolved)
		}
	}

	parsed, err := url.Parse(resolved)
	if err != nil {
		log.Warn("cannot parse link", "url", resolved, "error", err)
		return false
	}

	path := strings.TrimLeft(parsed.Path, "/")
	if path == "" && parsed.Opaque != "" {
		path = parsed.Opaque
	}
	segments := strings.Split(path, "/")
	ident := segments[len(segments)-1]

	if suffix := strings.ToLower(r.Settings.BotSuffix); suffix != "" && ident != "" &&
		strings.HasSuffix(strings.ToLower(ident), suffix) {
		return r.startBot(ctx, ident, parsed.Query().Get("start"))
	}

	if idx := strings.LastIndex(ident, "+"); idx >= 0 {
		hash, _, _ := strings.Cut(ident[idx+1:], "?")
		if hash != "" {
			if err := r.Client.JoinByInvite(ctx, hash); err != nil {
				log.Warn("invite join failed", "hash", hash, "error", err)
			} else {
				log.Info("joined via invite", "hash", hash)
				return true
			}
		}
	}

	if ident != "" {
		if err := r.Client.JoinChat(ctx, ident); err != nil {
			log.Debug("join by identifier failed", "target", ident, "error", err)
		} else {
			log.Info("joined chat", "target", ident)
			return true
		}
	}

	if err := r.Client.JoinChat(ctx, resolved); err != nil {
		log.Warn("join failed", "url", resolved, "error", err)
		return false
	}
	log.Info("joined via fallback link", "url", resolved)
	return true
}

// startBot sends /start (with an optional deep-link payload) to a bot.
func (r *Runner) startBot(ctx context.Context, bot, payload string) bool {
	log := r.logger()
	text := "/start"
	if payload != "" {
		text += " " + payload
	}
	if err := r.Client.SendMessage(ctx, bot, text); err != nil {
		log.Warn("cannot start bot", "bot", bot, "error", err)
		return false
	}
	log.Info("started bot", "bot", bot, "payload", payload)
	_ = r.wait(ctx, r.Settings.BotStartSettle)
	return true
}
