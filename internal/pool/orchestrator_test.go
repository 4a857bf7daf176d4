package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
)

func TestRunCycleThreeIdentitiesBoundTwo(t *testing.T) {
	opener := &fakeOpener{}
	o, sums := newTestOrchestrator(
		[]string{"session_1", "session_2", "session_3"},
		opener,
		succeedAfter(20*time.Millisecond),
		Settings{MaxConcurrent: 2},
	)

	result := o.RunCycle(context.Background(), 1)

	if got := result.Succeeded(); len(got) != 3 {
		t.Fatalf("expected 3 successes, got %v", got)
	}
	if got := result.Failed(); len(got) != 0 {
		t.Errorf("expected no failures, got %v", got)
	}
	open, peak := opener.stats()
	if peak > 2 {
		t.Errorf("%d sessions were open at once, bound is 2", peak)
	}
	if open != 0 {
		t.Errorf("%d sessions left open", open)
	}
	if o.Gate().Peak() > 2 {
		t.Errorf("gate peak %d exceeds bound", o.Gate().Peak())
	}
	if len(sums.calls) != 1 {
		t.Fatalf("expected one summary, got %d", len(sums.calls))
	}
	if len(sums.calls[0].succeeded) != 3 || len(sums.calls[0].failed) != 0 {
		t.Errorf("summary = %+v, want 3/0", sums.calls[0])
	}
}

func TestRunCycleBoundWithLargePool(t *testing.T) {
	var ids []string
	for i := 1; i <= 12; i++ {
		ids = append(ids, fmt.Sprintf("session_%d", i))
	}
	opener := &fakeOpener{}
	o, _ := newTestOrchestrator(ids, opener, succeedAfter(5*time.Millisecond), Settings{MaxConcurrent: 3})

	o.RunCycle(context.Background(), 1)

	if _, peak := opener.stats(); peak > 3 {
		t.Errorf("peak open sessions %d exceeds bound 3", peak)
	}
	if len(opener.opened) != 12 {
		t.Errorf("expected every identity to open a session once, got %d", len(opener.opened))
	}
}

func TestRunCyclePartitionsOutcomes(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	opener := &fakeOpener{openErr: map[string]error{"e": errors.New("session file missing")}}
	run := func(ctx context.Context, task Task) mission.Outcome {
		switch task.Identity {
		case "a", "c":
			return mission.Outcome{Success: true, Reason: mission.ReasonCompleted}
		case "d":
			panic("unexpected nil message")
		default:
			return mission.Outcome{Reason: mission.ReasonExhausted}
		}
	}
	o, sums := newTestOrchestrator(ids, opener, run, Settings{MaxConcurrent: 2})

	result := o.RunCycle(context.Background(), 1)

	if len(result.Outcomes) != len(ids) {
		t.Fatalf("expected %d outcomes, got %d", len(ids), len(result.Outcomes))
	}
	wantSucceeded := []string{"a", "c"}
	wantFailed := []string{"b", "d", "e"}
	if fmt.Sprint(result.Succeeded()) != fmt.Sprint(wantSucceeded) {
		t.Errorf("succeeded = %v, want %v", result.Succeeded(), wantSucceeded)
	}
	if fmt.Sprint(result.Failed()) != fmt.Sprint(wantFailed) {
		t.Errorf("failed = %v, want %v", result.Failed(), wantFailed)
	}
	if r := result.Outcomes["e"].Reason; r != mission.ReasonSessionError {
		t.Errorf("open failure reason = %v", r)
	}
	if r := result.Outcomes["d"].Reason; r != mission.ReasonSessionError {
		t.Errorf("panic reason = %v", r)
	}
	if open, _ := opener.stats(); open != 0 {
		t.Errorf("%d sessions left open after panic", open)
	}

	seen := make(map[string]int)
	for _, name := range append(sums.calls[0].succeeded, sums.calls[0].failed...) {
		seen[name]++
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("identity %s listed %d times in summary", id, seen[id])
		}
	}
}

func TestRunStopsAfterMaxCycles(t *testing.T) {
	o, sums := newTestOrchestrator([]string{"x"}, &fakeOpener{}, succeedAfter(0),
		Settings{MaxConcurrent: 1, Cooldown: 10 * time.Second, MaxCycles: 3})
	var cooldowns []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cooldowns = append(cooldowns, d)
		return nil
	}

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sums.calls) != 3 {
		t.Errorf("expected 3 cycles, got %d", len(sums.calls))
	}
	if len(cooldowns) != 2 || cooldowns[0] != 10*time.Second {
		t.Errorf("expected 2 cooldowns of 10s, got %v", cooldowns)
	}
}

func TestRunStopsOnCancelDuringCooldown(t *testing.T) {
	o, sums := newTestOrchestrator([]string{"x"}, &fakeOpener{}, succeedAfter(0),
		Settings{MaxConcurrent: 1, Cooldown: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(c context.Context, d time.Duration) error {
		cancel()
		<-c.Done()
		return c.Err()
	}

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sums.calls) != 1 {
		t.Errorf("expected one cycle before stop, got %d", len(sums.calls))
	}
}

func TestRunRejectsInvalidPool(t *testing.T) {
	o := NewOrchestrator("", nil, nil, nil)
	o.Logger = discardLogger()
	if err := o.Run(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunCycleShutdownDrainsInFlight(t *testing.T) {
	tests := []struct {
		name        string
		grace       time.Duration
		wantSuccess bool
	}{
		{"grace lets in-flight finish", time.Minute, true},
		{"zero grace cancels in-flight", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan string, 2)
			release := make(chan struct{})
			var once sync.Once

			run := func(ctx context.Context, task Task) mission.Outcome {
				first := false
				once.Do(func() { first = true })
				if !first {
					return mission.Outcome{Success: true, Reason: mission.ReasonCompleted}
				}
				started <- task.Identity
				select {
				case <-release:
					return mission.Outcome{Success: true, Reason: mission.ReasonCompleted}
				case <-ctx.Done():
					return mission.Outcome{Reason: mission.ReasonCanceled, Err: ctx.Err()}
				}
			}
			o, _ := newTestOrchestrator([]string{"s1", "s2"}, &fakeOpener{}, run,
				Settings{MaxConcurrent: 1, ShutdownGrace: tt.grace})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan CycleResult, 1)
			go func() { done <- o.RunCycle(ctx, 1) }()

			inflight := <-started
			cancel()
			if tt.wantSuccess {
				// give the waiting identity time to observe the stop
				time.Sleep(20 * time.Millisecond)
				close(release)
			}

			var result CycleResult
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("cycle did not drain")
			}

			if got := result.Outcomes[inflight].Success; got != tt.wantSuccess {
				t.Errorf("in-flight success = %v, want %v (%+v)", got, tt.wantSuccess, result.Outcomes[inflight])
			}
			other := "s1"
			if inflight == "s1" {
				other = "s2"
			}
			if r := result.Outcomes[other].Reason; r != mission.ReasonCanceled {
				t.Errorf("waiting identity reason = %v, want canceled", r)
			}
			if len(result.Outcomes) != 2 {
				t.Errorf("expected both identities in result, got %d", len(result.Outcomes))
			}
		})
	}
}

func TestUpdateSettingsAppliesToNextCycle(t *testing.T) {
	o, _ := newTestOrchestrator([]string{"a", "b", "c"}, &fakeOpener{}, succeedAfter(0), Settings{MaxConcurrent: 1})
	o.RunCycle(context.Background(), 1)
	if o.Gate().Limit() != 1 {
		t.Fatalf("limit = %d", o.Gate().Limit())
	}

	o.UpdateSettings(Settings{MaxConcurrent: 3})
	o.RunCycle(context.Background(), 2)
	if o.Gate().Limit() != 3 {
		t.Errorf("expected reloaded limit 3, got %d", o.Gate().Limit())
	}
}

func TestRunnerMissionUsesProfile(t *testing.T) {
	settings := mission.DefaultSettings()
	settings.StartSettle = 0
	settings.HistoryLimit = 5
	calls := 0
	run := RunnerMission(nil, func() Profile {
		calls++
		return Profile{Settings: settings}
	})

	out := run(context.Background(), Task{
		Identity: "session_9",
		Bot:      "rewardbot",
		Client:   &fakeSession{owner: &fakeOpener{}},
		Logger:   discardLogger(),
	})
	if calls != 1 {
		t.Errorf("profile read %d times, want 1", calls)
	}
	if out.Reason != mission.ReasonNoMission || out.Identity != "session_9" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestOnCycleHook(t *testing.T) {
	o, _ := newTestOrchestrator([]string{"a", "b"}, &fakeOpener{}, succeedAfter(0), Settings{MaxConcurrent: 2})
	var got []CycleResult
	o.OnCycle = func(r CycleResult) { got = append(got, r) }

	o.RunCycle(context.Background(), 4)

	if len(got) != 1 || got[0].Number != 4 || len(got[0].Outcomes) != 2 {
		t.Errorf("hook results = %+v", got)
	}
}
