// Package runner drives one briefing run: connectivity check, ledger load,
// source searches, enrichment, rendering, persistence and publishing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
	"github.com/ryosukesatoh/lit-briefing/internal/connectivity"
	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
	"github.com/ryosukesatoh/lit-briefing/internal/ledger"
	"github.com/ryosukesatoh/lit-briefing/internal/llm"
	"github.com/ryosukesatoh/lit-briefing/internal/observability"
	"github.com/ryosukesatoh/lit-briefing/internal/publisher"
	"github.com/ryosukesatoh/lit-briefing/internal/render"
	"github.com/ryosukesatoh/lit-briefing/internal/summarizer"
)

// ErrPersist marks a failure to read or write the output directory. The
// ledger is never advanced when it occurs.
var ErrPersist = errors.New("persistence failed")

// SourceError is returned when a source fails under the abort policy.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Enricher adds translations to papers in place and returns highlights.
type Enricher interface {
	Enrich(ctx context.Context, papers []fetcher.Paper) string
}

// Checker verifies network reachability.
type Checker interface {
	Check(ctx context.Context) error
}

// Runner orchestrates the fetch -> enrich -> render -> persist -> publish
// pipeline.
type Runner struct {
	cfg          *config.Config
	fetchers     []fetcher.Fetcher
	enricher     Enricher
	writer       *publisher.FileWriter
	publishers   []publisher.Publisher
	connectivity Checker
	metrics      *observability.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

// Deps are the collaborators of a Runner. Enricher, Connectivity and
// Metrics may be nil.
type Deps struct {
	Fetchers     []fetcher.Fetcher
	Enricher     Enricher
	Publishers   []publisher.Publisher
	Connectivity Checker
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

func New(cfg *config.Config, deps Deps) *Runner {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Runner{
		cfg:          cfg,
		fetchers:     deps.Fetchers,
		enricher:     deps.Enricher,
		writer:       publisher.NewFileWriter(cfg.Output.Dir()),
		publishers:   deps.Publishers,
		connectivity: deps.Connectivity,
		metrics:      metrics,
		logger:       deps.Logger,
		now:          now,
	}
}

// Build wires a Runner from configuration alone.
func Build(cfg *config.Config, stdout io.Writer, metrics *observability.Metrics, logger zerolog.Logger) (*Runner, error) {
	var fetchers []fetcher.Fetcher
	for _, name := range cfg.EnabledSources() {
		f, err := fetcher.New(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, f)
	}

	var enricher Enricher
	if cfg.LLM.Configured() && (cfg.LLM.EnableTranslation || cfg.LLM.EnableHighlights) {
		provider, err := llm.FromConfig(cfg.LLM)
		if err != nil {
			return nil, err
		}
		enricher = summarizer.New(provider, cfg.LLM, logger, metrics)
	} else {
		logger.Info().Msg("LLM provider not configured, enrichment disabled")
	}

	pubs, err := publisher.FromConfig(cfg.Publisher, stdout, metrics.Gatherer(), logger)
	if err != nil {
		return nil, err
	}

	return New(cfg, Deps{
		Fetchers:     fetchers,
		Enricher:     enricher,
		Publishers:   pubs,
		Connectivity: connectivity.FromConfig(cfg.Connectivity),
		Metrics:      metrics,
		Logger:       logger,
	}), nil
}

// Publishers returns the configured notification publishers.
func (r *Runner) Publishers() []publisher.Publisher {
	return r.publishers
}

// LedgerPath is where the run state lives.
func (r *Runner) LedgerPath() string {
	return ledger.Path(r.writer.Dir())
}

// Options controls a single run.
type Options struct {
	// DryRun renders the document without writing it or touching the
	// ledger. Publishers are skipped.
	DryRun bool
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Window   fetcher.Window
	Briefing render.Briefing
	Markdown string
	// Path is empty on a dry run.
	Path string
	// NewIDs is the number of ids added to the ledger.
	NewIDs     int
	LedgerSize int
	// Partial is set when a source failed under the skip policy.
	Partial bool
}

// Run executes the full pipeline once.
func (r *Runner) Run(ctx context.Context, opts Options) (res *Result, err error) {
	start := r.now()
	runID := uuid.NewString()
	logger := observability.WithRun(r.logger, runID)

	status := "success"
	defer func() {
		switch {
		case err != nil:
			status = "failed"
		case opts.DryRun:
			status = "dry_run"
		case res != nil && res.Partial:
			status = "partial"
		}
		r.metrics.RunsTotal.WithLabelValues(status).Inc()
		r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	if r.connectivity != nil {
		if err := r.connectivity.Check(ctx); err != nil {
			logger.Error().Err(err).Msg("connectivity check failed")
			return nil, err
		}
	}

	ledgerPath := r.LedgerPath()
	state, err := ledger.Load(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	today := truncateDay(start)
	window := fetcher.Window{From: today.AddDate(0, 0, -r.cfg.LookbackDays), To: today}
	if last, ok := state.LastFetchDate(start.Location()); ok {
		window.From = last
	} else if state.LastFetch() != "" {
		logger.Warn().Str("last_fetch", state.LastFetch()).Msg("unparseable last_fetch, using lookback window")
	}

	logger.Info().
		Str("window", window.String()).
		Int("seen_ids", state.Len()).
		Bool("dry_run", opts.DryRun).
		Msg("starting briefing run")

	papers, warnings, err := r.collect(ctx, logger, window, state)
	if err != nil {
		return nil, err
	}

	var highlights string
	if r.enricher != nil && len(papers) > 0 {
		highlights = r.enricher.Enrich(ctx, papers)
	}

	sources := make([]string, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		sources = append(sources, f.Name())
	}
	briefing := render.Briefing{
		GeneratedAt: start,
		Window:      window,
		Sources:     sources,
		Papers:      papers,
		Highlights:  highlights,
		Warnings:    warnings,
	}
	markdown := render.Render(briefing, render.Options{FrontMatter: r.cfg.Output.FrontMatter})

	res = &Result{
		RunID:      runID,
		Window:     window,
		Briefing:   briefing,
		Markdown:   markdown,
		Partial:    len(warnings) > 0,
		LedgerSize: state.Len(),
	}
	if opts.DryRun {
		logger.Info().Int("papers", len(papers)).Msg("dry run finished, nothing written")
		return res, nil
	}

	path, err := r.writer.Write(render.FileName(start), markdown)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.Path = path

	next := state.Clone()
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.SourceID)
	}
	res.NewIDs = next.Merge(ids)
	if res.Partial {
		logger.Warn().Msg("a source failed, last_fetch not advanced")
	} else {
		next.SetLastFetch(today)
	}
	if err := next.Save(ledgerPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.LedgerSize = next.Len()

	r.metrics.LedgerSize.Set(float64(next.Len()))
	r.metrics.LastSuccess.Set(float64(r.now().Unix()))

	logger.Info().
		Str("path", path).
		Int("papers", len(papers)).
		Int("new_ids", res.NewIDs).
		Int("ledger_size", next.Len()).
		Msg("briefing written")

	r.publish(ctx, logger, &publisher.Report{Briefing: briefing, Markdown: markdown, Path: path})
	return res, nil
}

// collect searches every source in order. Ids found earlier in the run are
// passed on as seen so later sources cannot report them again.
func (r *Runner) collect(ctx context.Context, logger zerolog.Logger, window fetcher.Window, state *ledger.Ledger) ([]fetcher.Paper, []string, error) {
	seen := fetcher.NewIDSet(state.IDs()...)

	var (
		papers   []fetcher.Paper
		warnings []string
	)
	for _, f := range r.fetchers {
		name := f.Name()
		srcLog := logger.With().Str("source", name).Logger()

		found, err := f.Search(ctx, window, r.cfg.MaxResults, seen)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			r.metrics.SourceFailures.WithLabelValues(name).Inc()
			if r.cfg.SourceFailurePolicy == config.PolicyAbort {
				srcLog.Error().Err(err).Msg("source failed, aborting run")
				return nil, nil, &SourceError{Source: name, Err: err}
			}
			srcLog.Warn().Err(err).Msg("source failed, skipping")
			warnings = append(warnings, fmt.Sprintf("%s search failed, results may be incomplete (%v)", name, err))
			continue
		}

		kept := 0
		for _, p := range found {
			if seen.Has(p.SourceID) {
				srcLog.Debug().Str("id", p.SourceID).Msg("dropping duplicate paper")
				continue
			}
			seen.Add(p.SourceID)
			papers = append(papers, p)
			kept++
			r.metrics.PapersTotal.WithLabelValues(name, categoryLabel(p)).Inc()
		}
		srcLog.Info().Int("papers", kept).Msg("source searched")
	}
	return papers, warnings, nil
}

// categoryLabel maps a paper to a bounded metric label; arXiv subject
// classes collapse into one.
func categoryLabel(p fetcher.Paper) string {
	switch {
	case p.Source == fetcher.SourceArxiv:
		return "preprint"
	case p.HasCategory(fetcher.CategoryExtended):
		return fetcher.CategoryExtended
	default:
		return fetcher.CategoryCore
	}
}

func (r *Runner) publish(ctx context.Context, logger zerolog.Logger, report *publisher.Report) {
	for _, pub := range r.publishers {
		if err := pub.Publish(ctx, report); err != nil {
			logger.Warn().Err(err).Str("publisher", pub.Name()).Msg("publish failed")
			continue
		}
		logger.Debug().Str("publisher", pub.Name()).Msg("published")
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
