// Package pool runs mission attempts for a fixed set of identities, cycle
// after cycle, with a bounded number of open sessions.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
)

// Session is an open, authenticated chat session for one identity.
type Session interface {
	mission.ChatClient
	Close() error
}

// SessionOpener opens the session stored under an identity name.
type SessionOpener interface {
	Open(ctx context.Context, identity string) (Session, error)
}

// LoggerProvider hands out the per-identity trace logger.
type LoggerProvider interface {
	Logger(identity string) *slog.Logger
}

// SummaryWriter persists the per-cycle summary artifact and returns its path.
type SummaryWriter interface {
	WriteSummary(at time.Time, succeeded, failed []string) (string, error)
}

// Task is one identity's mission attempt within a cycle.
type Task struct {
	Identity string
	Bot      string
	Client   mission.ChatClient
	Logger   *slog.Logger
}

// MissionFunc runs one mission attempt to completion.
type MissionFunc func(ctx context.Context, task Task) mission.Outcome

// Settings controls the outer loop.
type Settings struct {
	// MaxConcurrent caps simultaneously open sessions.
	MaxConcurrent int

	// Cooldown is the pause between cycles.
	Cooldown time.Duration

	// ShutdownGrace is how long in-flight missions may keep running after a
	// stop is requested before their context is cancelled.
	ShutdownGrace time.Duration

	// MaxCycles stops Run after that many cycles; 0 runs forever.
	MaxCycles int
}

// DefaultSettings returns the pool defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrent: 2,
		Cooldown:      10 * time.Second,
		ShutdownGrace: 30 * time.Second,
	}
}

// Orchestrator cycles the identity pool forever. The identity list is fixed
// for the orchestrator's lifetime; settings may change between cycles.
type Orchestrator struct {
	Bot        string
	Identities []string

	Opener    SessionOpener
	Mission   MissionFunc
	Summaries SummaryWriter
	Logs      LoggerProvider

	// Logger receives pool-level lines (cycle results, cooldown).
	Logger *slog.Logger

	// OnCycle, when set, is called with every finished cycle.
	OnCycle func(CycleResult)

	mu       sync.RWMutex
	settings Settings
	gate     *Gate

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator for the given bot and identities.
func NewOrchestrator(bot string, identities []string, opener SessionOpener, run MissionFunc) *Orchestrator {
	return &Orchestrator{
		Bot:        bot,
		Identities: append([]string(nil), identities...),
		Opener:     opener,
		Mission:    run,
		Logger:     slog.Default(),
		settings:   DefaultSettings(),
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) identityLogger(identity string) *slog.Logger {
	if o.Logs != nil {
		if l := o.Logs.Logger(identity); l != nil {
			return l
		}
	}
	return o.logger().With("identity", identity)
}

// Settings returns the current settings.
func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// UpdateSettings replaces the settings. A cycle already running keeps the
// values it started with.
func (o *Orchestrator) UpdateSettings(s Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = s
}

// Gate returns the admission gate used by the most recent cycle.
func (o *Orchestrator) Gate() *Gate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.gate
}

func (o *Orchestrator) gateFor(limit int) *Gate {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gate == nil || o.gate.Limit() != max(limit, 1) {
		o.gate = NewGate(limit)
	}
	return o.gate
}

func (o *Orchestrator) validate() error {
	var errs []error
	if o.Bot == "" {
		errs = append(errs, errors.New("bot username is empty"))
	}
	if len(o.Identities) == 0 {
		errs = append(errs, errors.New("identity pool is empty"))
	}
	if o.Opener == nil {
		errs = append(errs, errors.New("session opener is nil"))
	}
	if o.Mission == nil {
		errs = append(errs, errors.New("mission func is nil"))
	}
	return errors.Join(errs...)
}

// Run executes cycles until ctx is cancelled or MaxCycles is reached. A
// cancelled ctx is a clean shutdown: the current cycle drains (see RunCycle),
// its summary is written and Run returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.validate(); err != nil {
		return fmt.Errorf("invalid pool: %w", err)
	}
	log := o.logger()

	for n := 1; ; n++ {
		o.RunCycle(ctx, n)

		s := o.Settings()
		if ctx.Err() != nil {
			log.Info("pool stopped", "cycles", n)
			return nil
		}
		if s.MaxCycles > 0 && n >= s.MaxCycles {
			log.Info("cycle limit reached", "cycles", n)
			return nil
		}

		log.Info("cooldown before next cycle", "cooldown", s.Cooldown)
		if err := o.wait(ctx, s.Cooldown); err != nil {
			log.Info("pool stopped during cooldown", "cycles", n)
			return nil
		}
	}
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep(ctx, d)
	}
	return mission.Sleep(ctx, d)
}

// RunCycle runs one mission attempt per identity, at most MaxConcurrent at a
// time, and waits for all of them. Once ctx is cancelled no further identity
// is admitted; identities already running continue on a detached context for
// ShutdownGrace before that context is cancelled as well.
func (o *Orchestrator) RunCycle(ctx context.Context, number int) CycleResult {
	s := o.Settings()
	gate := o.gateFor(s.MaxConcurrent)
	log := o.logger()

	result := CycleResult{
		Number:   number,
		Started:  time.Now(),
		Outcomes: make(map[string]mission.Outcome, len(o.Identities)),
	}
	log.Info("cycle started", "cycle", number, "identities", len(o.Identities), "max_concurrent", gate.Limit())

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()
	stopGrace := context.AfterFunc(ctx, func() {
		if s.ShutdownGrace <= 0 {
			cancelRun()
			return
		}
		timer := time.NewTimer(s.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelRun()
		case <-runCtx.Done():
		}
	})
	defer stopGrace()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, identity := range o.Identities {
		identity := identity
		g.Go(func() error {
			out := o.runIdentity(ctx, runCtx, gate, identity)
			out.Identity = identity
			mu.Lock()
			result.Outcomes[identity] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	result.Finished = time.Now()

	o.report(result)
	if o.OnCycle != nil {
		o.OnCycle(result)
	}
	return result
}

// runIdentity admits one identity through the gate and runs its mission.
func (o *Orchestrator) runIdentity(admitCtx, runCtx context.Context, gate *Gate, identity string) (out mission.Outcome) {
	log := o.identityLogger(identity)

	err := gate.Do(admitCtx, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("mission panicked", "panic", r)
				out = mission.Outcome{Reason: mission.ReasonSessionError, Err: fmt.Errorf("mission panic: %v", r)}
			}
		}()
		out = o.runSession(runCtx, identity, log)
	})
	if err != nil {
		log.Info("not admitted, pool is stopping")
		return mission.Outcome{Reason: mission.ReasonCanceled, Err: err}
	}
	return out
}

func (o *Orchestrator) runSession(ctx context.Context, identity string, log *slog.Logger) mission.Outcome {
	started := time.Now()
	sess, err := o.Opener.Open(ctx, identity)
	if err != nil {
		log.Error("cannot open session", "error", err)
		return mission.Outcome{
			Reason:   mission.ReasonSessionError,
			Err:      fmt.Errorf("open session %s: %w", identity, err),
			Duration: time.Since(started),
		}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("closing session failed", "error", err)
		}
	}()

	log.Info("===== session started =====")
	out := o.Mission(ctx, Task{
		Identity: identity,
		Bot:      o.Bot,
		Client:   sess,
		Logger:   log,
	})
	log.Info("===== session finished =====", "success", out.Success, "reason", out.Reason.String(), "retries", out.Retries)
	return out
}

func (o *Orchestrator) report(result CycleResult) {
	log := o.logger()
	succeeded, failed := result.Succeeded(), result.Failed()

	log.Info("cycle succeeded", "cycle", result.Number, "count", len(succeeded), "identities", succeeded)
	log.Info("cycle failed", "cycle", result.Number, "count", len(failed), "identities", failed)

	if o.Summaries == nil {
		return
	}
	path, err := o.Summaries.WriteSummary(result.Finished, succeeded, failed)
	if err != nil {
		log.Error("cannot write cycle summary", "cycle", result.Number, "error", err)
		return
	}
	log.Info("summary saved", "cycle", result.Number, "path", path)
}

// RunnerMission returns a MissionFunc that drives a mission.Runner. profile
// is read at the start of every attempt so reloaded settings apply to the
// next identity that starts.
func RunnerMission(resolver mission.Resolver, profile func() Profile) MissionFunc {
	return func(ctx context.Context, task Task) mission.Outcome {
		p := profile()
		r := mission.NewRunner(task.Identity, task.Client, resolver)
		r.Settings = p.Settings
		if p.Classifier != nil {
			r.Classifier = p.Classifier
		}
		r.Logger = task.Logger
		return r.Run(ctx, task.Bot)
	}
}

// Profile is the mission configuration in effect for new attempts.
type Profile struct {
	Settings   mission.Settings
	Classifier *mission.Classifier
}
