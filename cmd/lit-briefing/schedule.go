package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/lit-briefing/internal/publisher"
	"github.com/ryosukesatoh/lit-briefing/internal/runner"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		Long: `Schedule keeps running and triggers a briefing run on schedule.cron. A run
that is still in progress when the next one is due causes that tick to be
skipped. The web publisher, if configured, serves the latest briefing and
the process metrics while the scheduler runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			r, err := a.runner(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return schedule(ctx, a, r)
		},
	}
}

func schedule(ctx context.Context, a *app, r *runner.Runner) error {
	var webPubs []*publisher.WebPublisher
	for _, p := range r.Publishers() {
		if wp, ok := p.(*publisher.WebPublisher); ok {
			if err := wp.Start(); err != nil {
				return err
			}
			webPubs = append(webPubs, wp)
		}
	}

	runOnce := func() {
		if _, err := r.Run(ctx, runner.Options{}); err != nil {
			a.logger.Error().Err(err).Int("exit_code", exitCode(err)).Msg("scheduled run failed")
		}
		a.flushMetrics()
	}

	cl := cronLogger{a.logger.With().Str("component", "cron").Logger()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(a.cfg.Schedule.Cron, runOnce); err != nil {
		return &configError{err: fmt.Errorf("config: invalid schedule.cron %q: %w", a.cfg.Schedule.Cron, err)}
	}

	if a.cfg.Schedule.RunOnStart {
		a.logger.Info().Msg("running initial briefing")
		runOnce()
	}

	c.Start()
	a.logger.Info().Str("cron", a.cfg.Schedule.Cron).Msg("scheduler started")

	<-ctx.Done()
	a.logger.Info().Msg("shutting down")

	// Wait for a running job to finish; it sees the cancelled context.
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, wp := range webPubs {
		if err := wp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("web shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
