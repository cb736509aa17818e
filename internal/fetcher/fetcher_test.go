package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

func TestPaperURL(t *testing.T) {
	assert.Equal(t, "https://doi.org/10.1/x", PaperURL(SourcePubMed, "100", "10.1/x"))
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/100/", PaperURL(SourcePubMed, "100", ""))
	assert.Equal(t, "https://arxiv.org/abs/2610.1v1", PaperURL(SourceArxiv, "2610.1v1", ""))
	assert.Equal(t, "", PaperURL(Source("OTHER"), "1", ""))
}

func TestPaperKeyIncludesSource(t *testing.T) {
	a := Paper{Source: SourcePubMed, SourceID: "1"}
	b := Paper{Source: SourceArxiv, SourceID: "1"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Paper{Source: SourcePubMed, SourceID: "1", Title: "other"}.Key())
}

func TestIDSet(t *testing.T) {
	var empty IDSet
	assert.False(t, empty.Has("x"))

	s := NewIDSet("a", "b")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
	s.Add("c")
	assert.True(t, s.Has("c"))
}

func TestWindowString(t *testing.T) {
	w := Window{
		From: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2026/10/12 ~ 2026/10/19", w.String())
}

func TestRegistry(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, []string{"arxiv", "pubmed"}, Names())

	for _, name := range []string{"pubmed", "arxiv", "PubMed"} {
		f, err := New(name, &cfg, zerolog.Nop())
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	f, err := New("pubmed", &cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "pubmed", f.Name())

	_, err = New("scopus", &cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestPacerSpacesRequests(t *testing.T) {
	p := newPacer(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 15*time.Millisecond, "first request should not wait")

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPacerWithoutDelay(t *testing.T) {
	p := newPacer(0)
	start := time.Now()
	for range 10 {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
