package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
	"github.com/ryosukesatoh/lit-briefing/internal/observability"
)

type call struct {
	prompt    string
	system    string
	maxTokens int
}

// fakeProvider answers translations with a prefix and highlights with a
// fixed list. fail decides per prompt whether to return an error.
type fakeProvider struct {
	calls []call
	fail  func(prompt string) bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Call(_ context.Context, prompt, system string, maxTokens int) (string, error) {
	f.calls = append(f.calls, call{prompt: prompt, system: system, maxTokens: maxTokens})
	if f.fail != nil && f.fail(prompt) {
		return "", errors.New("provider unavailable")
	}
	if strings.Contains(system, "translator") {
		return "ZH:" + prompt, nil
	}
	return "- **1.** notable", nil
}

func testConfig() config.LLMConfig {
	cfg := config.Default().LLM
	cfg.TitleDelay = 0
	cfg.AbstractDelay = 0
	return cfg
}

func samplePapers() []fetcher.Paper {
	return []fetcher.Paper{
		{Source: fetcher.SourcePubMed, SourceID: "1", Title: "Gene drive", Abstract: "We built a gene drive.", Journal: "Nature", JournalAbbr: "Nature"},
		{Source: fetcher.SourceArxiv, SourceID: "2610.1v1", Title: "Protein LM", Journal: "arXiv", JournalAbbr: "arXiv"},
	}
}

func TestEnrichTranslatesAndHighlights(t *testing.T) {
	fp := &fakeProvider{}
	m := observability.NewMetrics()
	s := New(fp, testConfig(), zerolog.Nop(), m)

	papers := samplePapers()
	highlights := s.Enrich(context.Background(), papers)

	assert.Equal(t, "- **1.** notable", highlights)
	assert.Equal(t, "ZH:Gene drive", papers[0].TitleTranslated)
	assert.Equal(t, "ZH:We built a gene drive.", papers[0].AbstractTranslated)
	assert.Equal(t, "ZH:Protein LM", papers[1].TitleTranslated)
	assert.Equal(t, "", papers[1].AbstractTranslated, "empty abstract is not sent")

	require.Len(t, fp.calls, 4)
	assert.Contains(t, fp.calls[0].system, "Chinese")
	assert.Contains(t, fp.calls[0].system, "Output only the translation")

	last := fp.calls[3]
	assert.Equal(t, 1500, last.maxTokens)
	assert.Contains(t, last.prompt, "1. [Nature] Gene drive")
	assert.Contains(t, last.prompt, "2. [arXiv] Protein LM")
	assert.Contains(t, last.prompt, "3-5")
	assert.Contains(t, last.prompt, "methodological breakthroughs")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("translate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("highlights", "ok")))
}

func TestEnrichAlwaysFailingProviderDegrades(t *testing.T) {
	fp := &fakeProvider{fail: func(string) bool { return true }}
	s := New(fp, testConfig(), zerolog.Nop(), nil)

	papers := samplePapers()
	original := samplePapers()
	highlights := s.Enrich(context.Background(), papers)

	assert.Equal(t, "", highlights)
	assert.Equal(t, original, papers, "papers must be left untouched")
}

func TestTranslationFailureIsPerCall(t *testing.T) {
	fp := &fakeProvider{fail: func(prompt string) bool { return prompt == "Gene drive" }}
	s := New(fp, testConfig(), zerolog.Nop(), nil)

	papers := samplePapers()
	s.TranslatePapers(context.Background(), papers)

	assert.Equal(t, "", papers[0].TitleTranslated)
	assert.Equal(t, "ZH:We built a gene drive.", papers[0].AbstractTranslated)
	assert.Equal(t, "ZH:Protein LM", papers[1].TitleTranslated)
}

func TestAbstractIsTruncatedBeforeTranslation(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, testConfig(), zerolog.Nop(), nil)

	long := strings.Repeat("基", 900)
	papers := []fetcher.Paper{{SourceID: "1", Abstract: long}}
	s.TranslatePapers(context.Background(), papers)

	require.Len(t, fp.calls, 1)
	sent := fp.calls[0].prompt
	assert.Equal(t, 803, len([]rune(sent)))
	assert.True(t, strings.HasSuffix(sent, "..."))
}

func TestTranslatedFieldsAreWriteOnce(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, testConfig(), zerolog.Nop(), nil)

	papers := []fetcher.Paper{{SourceID: "1", Title: "T", TitleTranslated: "already", Abstract: "A", AbstractTranslated: "done"}}
	s.TranslatePapers(context.Background(), papers)

	assert.Empty(t, fp.calls)
	assert.Equal(t, "already", papers[0].TitleTranslated)
}

func TestTogglesDisableStages(t *testing.T) {
	fp := &fakeProvider{}
	cfg := testConfig()
	cfg.EnableTranslation = false
	cfg.EnableHighlights = false
	s := New(fp, cfg, zerolog.Nop(), nil)

	papers := samplePapers()
	assert.Equal(t, "", s.Enrich(context.Background(), papers))
	assert.Empty(t, fp.calls)
}

func TestEnrichNoPapers(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, testConfig(), zerolog.Nop(), nil)
	assert.Equal(t, "", s.Enrich(context.Background(), nil))
	assert.Empty(t, fp.calls)
}

func TestTranslateEmpty(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, testConfig(), zerolog.Nop(), nil)

	out, err := s.Translate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Empty(t, fp.calls)
}

func TestTargetLanguageInPrompts(t *testing.T) {
	fp := &fakeProvider{}
	cfg := testConfig()
	cfg.TargetLanguage = "Japanese"
	s := New(fp, cfg, zerolog.Nop(), nil)

	_, _ = s.Translate(context.Background(), "hello")
	_ = s.Highlights(context.Background(), samplePapers())

	require.Len(t, fp.calls, 2)
	assert.Contains(t, fp.calls[0].system, "Japanese")
	assert.Contains(t, fp.calls[1].prompt, "Japanese")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab...", truncateRunes("abc", 2))
	assert.Equal(t, "文献...", truncateRunes("文献简报", 2))
}
