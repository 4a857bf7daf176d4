package mission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

type sentMessage struct {
	peer string
	text string
}

// fakeClient simulates a mission bot. The completion notice appears once
// completeAfter verify presses have been answered (0 means never).
type fakeClient struct {
	mu sync.Mutex

	keyboard      Message
	noKeyboard    bool
	completeAfter int
	marker        string

	historyErr  error
	callbackErr map[string]error
	blockOnCall bool
	inviteErr   error
	joinErr     map[string]error

	sent      []sentMessage
	callbacks []string
	invites   []string
	joins     []string
	histories int
}

func (f *fakeClient) SendMessage(ctx context.Context, peer, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{peer: peer, text: text})
	return nil
}

func (f *fakeClient) History(ctx context.Context, peer string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var msgs []Message
	if f.completeAfter > 0 && f.verifyCountLocked() >= f.completeAfter {
		msgs = append(msgs, Message{ID: 99, ChatID: f.keyboard.ChatID, Text: "✅ " + f.marker + "! +5"})
	}
	msgs = append(msgs, Message{ID: 50, ChatID: f.keyboard.ChatID, Text: "Balance: 10"})
	if !f.noKeyboard {
		msgs = append(msgs, f.keyboard)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeClient) verifyCountLocked() int {
	n := 0
	for _, cb := range f.callbacks {
		if cb == "verify" {
			n++
		}
	}
	return n
}

func (f *fakeClient) AnswerCallback(ctx context.Context, chatID, messageID int64, data []byte) error {
	f.mu.Lock()
	f.callbacks = append(f.callbacks, string(data))
	block := f.blockOnCall
	err := f.callbackErr[string(data)]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeClient) JoinByInvite(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, hash)
	return f.inviteErr
}

func (f *fakeClient) JoinChat(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, target)
	return f.joinErr[target]
}

func (f *fakeClient) count(data string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cb := range f.callbacks {
		if cb == data {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	final string
	err   error
	calls []string
}

func (r *fakeResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	r.calls = append(r.calls, rawURL)
	if r.err != nil {
		return rawURL, r.err
	}
	return r.final, nil
}

var errRejected = errors.New("rejected")

func missionKeyboard() Message {
	return Message{
		ID:     42,
		ChatID: 7,
		Text:   "New task: subscribe to the channel",
		Rows: [][]Button{
			{{Text: "🔍 Перейти", URL: "https://t.me/somechannel"}},
			{{Text: "✓ Подтвердить", Data: []byte("verify")}},
			{{Text: "Пропустить", Data: []byte("skip")}},
		},
	}
}

// newTestRunner returns a runner that never really sleeps and always picks
// the low end of jitter ranges. Waited durations are recorded.
func newTestRunner(client ChatClient, resolver Resolver) (*Runner, *[]time.Duration) {
	r := NewRunner("session_1", client, resolver)
	r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	waits := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	r.jitter = func(lo, hi time.Duration) time.Duration { return lo }
	return r, waits
}
