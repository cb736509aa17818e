package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRun(NewLogger(LoggingConfig{Level: "info", Format: "json", Output: &buf}), "run-1")

	logger.Debug().Msg("hidden")
	logger.Info().Str("source", "pubmed").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "pubmed", entry["source"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "debug", Format: "console", Output: &buf})
	logger.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "warn", parseLevel("WARNING").String())
	assert.Equal(t, "trace", parseLevel("trace").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.RunsTotal.WithLabelValues("success").Inc()
	m.PapersTotal.WithLabelValues("pubmed", "core").Add(3)
	m.LedgerSize.Set(42)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PapersTotal.WithLabelValues("pubmed", "core")))

	path := filepath.Join(t.TempDir(), "lit_briefing.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `lit_briefing_runs_total{status="success"} 1`)
	assert.Contains(t, text, `lit_briefing_papers_total{category="core",source="pubmed"} 3`)
	assert.Contains(t, text, "lit_briefing_ledger_seen_ids 42")
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.RunsTotal.WithLabelValues("failed").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsTotal.WithLabelValues("failed")))
}
