// Package summarizer enriches fetched papers with LLM translations and a
// short highlights list. Every failure here is absorbed: the briefing is
// rendered with whatever enrichment succeeded.
package summarizer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
	"github.com/ryosukesatoh/lit-briefing/internal/llm"
	"github.com/ryosukesatoh/lit-briefing/internal/observability"
)

const (
	abstractLimit       = 800
	translateMaxTokens  = 2000
	highlightsMaxTokens = 1500
)

// Summarizer runs translation and highlight generation against one provider.
type Summarizer struct {
	provider llm.Provider
	cfg      config.LLMConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New returns a Summarizer. metrics may be nil.
func New(provider llm.Provider, cfg config.LLMConfig, logger zerolog.Logger, metrics *observability.Metrics) *Summarizer {
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "Chinese"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = translateMaxTokens
	}
	return &Summarizer{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "summarizer").Str("provider", provider.Name()).Logger(),
		metrics:  metrics,
	}
}

// Enrich translates papers in place when translation is enabled and returns
// the highlights text, or "" when highlights are disabled or failed.
func (s *Summarizer) Enrich(ctx context.Context, papers []fetcher.Paper) string {
	if len(papers) == 0 {
		return ""
	}
	if s.cfg.EnableTranslation {
		s.TranslatePapers(ctx, papers)
	}
	if !s.cfg.EnableHighlights {
		return ""
	}
	return s.Highlights(ctx, papers)
}

// TranslatePapers fills the translated title and abstract of each paper.
// A failed call leaves that field empty so the original is rendered.
func (s *Summarizer) TranslatePapers(ctx context.Context, papers []fetcher.Paper) {
	s.logger.Info().Int("papers", len(papers)).Str("language", s.cfg.TargetLanguage).Msg("translating")

	failed := 0
	for i := range papers {
		p := &papers[i]

		if p.TitleTranslated == "" && p.Title != "" {
			out, err := s.Translate(ctx, p.Title)
			if err != nil {
				failed++
				s.logger.Warn().Err(err).Str("id", p.SourceID).Msg("title translation failed, keeping original")
			} else {
				p.TitleTranslated = out
			}
			s.pause(ctx, s.cfg.TitleDelay)
		}

		if p.AbstractTranslated == "" && p.Abstract != "" {
			out, err := s.Translate(ctx, truncateRunes(p.Abstract, abstractLimit))
			if err != nil {
				failed++
				s.logger.Warn().Err(err).Str("id", p.SourceID).Msg("abstract translation failed, keeping original")
			} else {
				p.AbstractTranslated = out
			}
			s.pause(ctx, s.cfg.AbstractDelay)
		}
	}

	if failed > 0 {
		s.logger.Warn().Int("failed_calls", failed).Msg("translation finished with failures")
	}
}

// Translate sends one text for translation. Empty input is returned as is
// without calling the provider.
func (s *Summarizer) Translate(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	out, err := s.provider.Call(ctx, text, translationSystem(s.cfg.TargetLanguage), s.cfg.MaxTokens)
	s.count("translate", err)
	return out, err
}

// Highlights asks the model to pick the notable papers. It returns "" on
// any failure.
func (s *Summarizer) Highlights(ctx context.Context, papers []fetcher.Paper) string {
	if len(papers) == 0 {
		return ""
	}
	out, err := s.provider.Call(ctx,
		highlightsPrompt(papers, s.cfg.TargetLanguage),
		highlightsSystem(s.cfg.TargetLanguage),
		highlightsMaxTokens,
	)
	s.count("highlights", err)
	if err != nil {
		s.logger.Warn().Err(err).Msg("highlights generation failed, omitting section")
		return ""
	}
	return out
}

func (s *Summarizer) count(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.LLMCalls.WithLabelValues(op, status).Inc()
}

func (s *Summarizer) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// truncateRunes cuts s to limit characters and marks the cut with "...".
func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
