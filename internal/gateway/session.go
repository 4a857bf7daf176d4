package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
)

// Session is one open gateway session. It implements mission.ChatClient.
type Session struct {
	client   *Client
	identity string
}

// Identity returns the session's identity name.
func (s *Session) Identity() string {
	return s.identity
}

type sendMessageRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

type callbackRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Data      []byte `json:"data"`
}

type joinRequest struct {
	Target string `json:"target"`
}

type joinInviteRequest struct {
	Hash string `json:"hash"`
}

type wireButton struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

type wireMessage struct {
	ID      int64          `json:"id"`
	ChatID  int64          `json:"chat_id"`
	Text    string         `json:"text"`
	Buttons [][]wireButton `json:"buttons,omitempty"`
}

func (m wireMessage) toMessage() mission.Message {
	msg := mission.Message{ID: m.ID, ChatID: m.ChatID, Text: m.Text}
	for _, row := range m.Buttons {
		r := make([]mission.Button, 0, len(row))
		for _, b := range row {
			r = append(r, mission.Button{Text: b.Text, URL: b.URL, Data: b.Data})
		}
		msg.Rows = append(msg.Rows, r)
	}
	return msg
}

// SendMessage sends text to peer.
func (s *Session) SendMessage(ctx context.Context, peer, text string) error {
	return s.client.call(ctx, http.MethodPost, s.identity, "messages", nil, sendMessageRequest{Peer: peer, Text: text}, nil)
}

// History returns up to limit recent messages from peer, newest first.
func (s *Session) History(ctx context.Context, peer string, limit int) ([]mission.Message, error) {
	q := url.Values{}
	q.Set("peer", peer)
	q.Set("limit", strconv.Itoa(limit))

	var wire []wireMessage
	if err := s.client.call(ctx, http.MethodGet, s.identity, "history", q, nil, &wire); err != nil {
		return nil, err
	}
	msgs := make([]mission.Message, 0, len(wire))
	for _, m := range wire {
		msgs = append(msgs, m.toMessage())
	}
	return msgs, nil
}

// AnswerCallback presses the inline button carrying data.
func (s *Session) AnswerCallback(ctx context.Context, chatID, messageID int64, data []byte) error {
	return s.client.call(ctx, http.MethodPost, s.identity, "callback", nil,
		callbackRequest{ChatID: chatID, MessageID: messageID, Data: data}, nil)
}

// JoinByInvite joins a chat through a private invite hash.
func (s *Session) JoinByInvite(ctx context.Context, hash string) error {
	return s.client.call(ctx, http.MethodPost, s.identity, "join-invite", nil, joinInviteRequest{Hash: hash}, nil)
}

// JoinChat joins a public chat by username or link.
func (s *Session) JoinChat(ctx context.Context, target string) error {
	return s.client.call(ctx, http.MethodPost, s.identity, "join", nil, joinRequest{Target: target}, nil)
}

// Close releases the session on the gateway. It is not paced and uses its
// own timeout so it still runs after the mission context is cancelled.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.timeout)
	defer cancel()
	return s.client.do(ctx, http.MethodPost, s.identity, "close", nil, nil, nil)
}
