package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
	"github.com/ryosukesatoh/lit-briefing/internal/observability"
	"github.com/ryosukesatoh/lit-briefing/internal/runner"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lit-briefing",
		Short: "Collect new papers from PubMed and arXiv into a Markdown briefing",
		Long: `lit-briefing searches PubMed and arXiv for papers published since the last
run, drops everything already reported, optionally translates titles and
abstracts and picks highlights with an LLM, and writes a Markdown briefing.

Identifiers already reported are kept in last_fetch_state.json next to the
briefings so each paper is reported once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.yaml", "path to config file")

	root.AddCommand(
		newRunCmd(),
		newScheduleCmd(),
		newLedgerCmd(),
		newVersionCmd(),
	)
	return root
}

// app is what every command needs after loading the configuration.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &configError{err: err}
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}, nil
}

func (a *app) runner(cmd *cobra.Command) (*runner.Runner, error) {
	r, err := runner.Build(a.cfg, cmd.OutOrStdout(), a.metrics, a.logger)
	if err != nil {
		return nil, &configError{err: err}
	}
	return r, nil
}

// flushMetrics writes the node-exporter textfile when configured.
func (a *app) flushMetrics() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write metrics textfile")
	}
}
