package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpener counts simultaneously open sessions.
type fakeOpener struct {
	mu      sync.Mutex
	open    int
	peak    int
	opened  []string
	openErr map[string]error
}

func (f *fakeOpener) Open(ctx context.Context, identity string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[identity]; err != nil {
		return nil, err
	}
	f.open++
	if f.open > f.peak {
		f.peak = f.open
	}
	f.opened = append(f.opened, identity)
	return &fakeSession{owner: f}, nil
}

func (f *fakeOpener) stats() (open, peak int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, f.peak
}

type fakeSession struct {
	owner  *fakeOpener
	closed bool
}

func (s *fakeSession) SendMessage(ctx context.Context, peer, text string) error { return nil }
func (s *fakeSession) History(ctx context.Context, peer string, limit int) ([]mission.Message, error) {
	return nil, nil
}
func (s *fakeSession) AnswerCallback(ctx context.Context, chatID, messageID int64, data []byte) error {
	return nil
}
func (s *fakeSession) JoinByInvite(ctx context.Context, hash string) error { return nil }
func (s *fakeSession) JoinChat(ctx context.Context, target string) error { return nil }

func (s *fakeSession) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return errors.New("closed twice")
	}
	s.closed = true
	s.owner.open--
	return nil
}

type summaryCall struct {
	succeeded []string
	failed    []string
}

type fakeSummaries struct {
	mu    sync.Mutex
	calls []summaryCall
	err   error
}

func (f *fakeSummaries) WriteSummary(at time.Time, succeeded, failed []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, summaryCall{succeeded: succeeded, failed: failed})
	if f.err != nil {
		return "", f.err
	}
	return "logs/summary_test.log", nil
}

// succeedAfter returns a mission that holds its session for d and succeeds.
func succeedAfter(d time.Duration) MissionFunc {
	return func(ctx context.Context, task Task) mission.Outcome {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return mission.Outcome{Reason: mission.ReasonCanceled, Err: ctx.Err()}
		}
		return mission.Outcome{Success: true, Reason: mission.ReasonCompleted}
	}
}

func newTestOrchestrator(identities []string, opener SessionOpener, run MissionFunc, s Settings) (*Orchestrator, *fakeSummaries) {
	o := NewOrchestrator("rewardbot", identities, opener, run)
	o.Logger = discardLogger()
	sums := &fakeSummaries{}
	o.Summaries = sums
	o.UpdateSettings(s)
	return o, sums
}
