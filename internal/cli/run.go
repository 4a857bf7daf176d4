package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/missionctl/internal/config"
	"github.com/Dicklesworthstone/missionctl/internal/gateway"
	"github.com/Dicklesworthstone/missionctl/internal/output"
	"github.com/Dicklesworthstone/missionctl/internal/pool"
	"github.com/Dicklesworthstone/missionctl/internal/report"
	"github.com/Dicklesworthstone/missionctl/internal/resolver"
	"github.com/Dicklesworthstone/missionctl/internal/summary"
	"github.com/Dicklesworthstone/missionctl/internal/watcher"
)

func runPool(cmd *cobra.Command, f runFlags) error {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid config %s: %w", path, errors.Join(errs...))
	}
	if f.cycles < 0 {
		return fmt.Errorf("--cycles must not be negative")
	}

	logger, level, err := newProcessLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	console := output.NewConsole(cmd.OutOrStdout(), noColor)
	tgt, err := collectTarget(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout(), noColor), cfg, targetInput{
		bot:      f.bot,
		first:    f.first,
		last:     f.last,
		hasFirst: cmd.Flags().Changed("first"),
		hasLast:  cmd.Flags().Changed("last"),
	})
	if err != nil {
		return err
	}

	sink, err := report.NewSink(cfg.LogDir, console, cfg.Verbose && !f.quiet)
	if err != nil {
		return err
	}
	sink.Level = level
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing identity logs", "error", err)
		}
	}()

	var profile atomic.Pointer[pool.Profile]
	profile.Store(&pool.Profile{Settings: cfg.MissionSettings(), Classifier: cfg.Classifier()})

	gw := gateway.New(gateway.Options{
		BaseURL:           cfg.Gateway.URL,
		Token:             cfg.Gateway.Token,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
		Timeout:           cfg.GatewayTimeout(),
		Logger:            logger,
	})
	orch := pool.NewOrchestrator(tgt.Bot, tgt.Identities, gw, pool.RunnerMission(
		resolver.New(cfg.RedirectTimeout()),
		func() pool.Profile { return *profile.Load() },
	))
	orch.Summaries = summary.NewWriter(cfg.LogDir)
	orch.Logs = sink
	orch.Logger = sink.Main()
	orch.UpdateSettings(cfg.PoolSettings(f.cycles))
	if !f.quiet {
		orch.OnCycle = func(r pool.CycleResult) { printCycle(console, r) }
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if w := startConfigWatcher(ctx, path, logger, func(c *config.Config) {
		profile.Store(&pool.Profile{Settings: c.MissionSettings(), Classifier: c.Classifier()})
		orch.UpdateSettings(c.PoolSettings(f.cycles))
	}); w != nil {
		defer w.Stop()
	}

	printBanner(console, tgt, cfg)
	return orch.Run(ctx)
}

// startConfigWatcher watches the config file when it exists. Reload problems
// never stop the run.
func startConfigWatcher(ctx context.Context, path string, logger *slog.Logger, apply watcher.ReloadFunc) *watcher.ConfigWatcher {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	w, err := watcher.NewConfigWatcher(path, apply, watcher.WithLogger(logger))
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
		return nil
	}
	w.Start(ctx)
	return w
}

func printBanner(c *output.Console, t target, cfg *config.Config) {
	c.Title("missionctl")
	c.Textln("  bot:         @%s", t.Bot)
	c.Textln("  identities:  %s (%s .. %s)", output.CountStr(len(t.Identities), "identity", "identities"),
		t.Identities[0], t.Identities[len(t.Identities)-1])
	c.Textln("  concurrency: %d", cfg.Pool.MaxConcurrent)
	c.Textln("  gateway:     %s", cfg.Gateway.URL)
	c.Textln("  logs:        %s", cfg.LogDir)
	c.Line()
}

func printCycle(c *output.Console, r pool.CycleResult) {
	succeeded, failed := r.Succeeded(), r.Failed()
	c.Line()
	c.Title(fmt.Sprintf("Cycle %d finished in %s", r.Number, r.Duration().Round(time.Second)))

	tbl := output.NewTable(c.Writer(), "IDENTITY", "RESULT", "RETRIES", "DURATION")
	for _, name := range append(succeeded, failed...) {
		o := r.Outcomes[name]
		tbl.AddRow(name, o.Reason.String(), fmt.Sprint(o.Retries), o.Duration.Round(time.Second).String())
	}
	tbl.Render()

	if len(failed) == 0 {
		c.Success("%s succeeded", output.CountStr(len(succeeded), "identity", "identities"))
	} else {
		c.Failure("%d succeeded, %d failed", len(succeeded), len(failed))
	}
	c.Line()
}
