// Package mission drives one identity through a bot mission: start the bot,
// find the button message, press join/verify, poll for the completion marker,
// retry, and finally skip.
package mission

import (
	"context"
	"time"
)

// ChatClient is the capability an authenticated chat session must provide.
// Implementations own the session state; the runner only issues calls.
type ChatClient interface {
	// SendMessage sends text to a peer (username without "@").
	SendMessage(ctx context.Context, peer, text string) error

	// History returns up to limit messages from the chat with peer, newest first.
	History(ctx context.Context, peer string, limit int) ([]Message, error)

	// AnswerCallback presses an inline button by sending its callback data.
	AnswerCallback(ctx context.Context, chatID, messageID int64, data []byte) error

	// JoinByInvite joins a chat using the hash of a "+" invite link.
	JoinByInvite(ctx context.Context, hash string) error

	// JoinChat joins a chat by username or full link.
	JoinChat(ctx context.Context, target string) error
}

// Resolver follows HTTP redirects. On failure it returns the original URL
// together with the error.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Button is one inline keyboard button. A button carries either a URL or
// callback data.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Message is a chat message as seen by the runner.
type Message struct {
	ID     int64      `json:"id"`
	ChatID int64      `json:"chat_id"`
	Text   string     `json:"text,omitempty"`
	Rows   [][]Button `json:"rows,omitempty"`
}

// HasButtons reports whether the message carries an inline keyboard.
func (m Message) HasButtons() bool {
	for _, row := range m.Rows {
		if len(row) > 0 {
			return true
		}
	}
	return false
}

// Reason says why a mission attempt ended.
type Reason int

const (
	ReasonCompleted Reason = iota
	ReasonNoMission
	ReasonExhausted
	ReasonCanceled
	ReasonSessionError
)

func (r Reason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonNoMission:
		return "no_mission"
	case ReasonExhausted:
		return "exhausted"
	case ReasonCanceled:
		return "canceled"
	case ReasonSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one mission attempt. Retries counts the
// retry passes run before the attempt ended.
type Outcome struct {
	Identity string
	Success  bool
	Reason   Reason
	Retries  int
	Duration time.Duration
	Err      error
}
