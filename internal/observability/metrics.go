package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lit_briefing"

// Metrics holds the pipeline metrics. They live on a private registry so a
// one-shot run can dump them to a node-exporter textfile and a scheduled
// process can serve them over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts pipeline runs by final status.
	RunsTotal *prometheus.CounterVec

	// RunDuration observes end-to-end run time in seconds.
	RunDuration prometheus.Histogram

	// PapersTotal counts new papers by source and category.
	PapersTotal *prometheus.CounterVec

	// SourceFailures counts source searches that returned an error.
	SourceFailures *prometheus.CounterVec

	// LLMCalls counts enrichment calls by operation and status.
	LLMCalls *prometheus.CounterVec

	// LedgerSize is the number of ids in the ledger after the last save.
	LedgerSize prometheus.Gauge

	// LastSuccess is the unix time of the last successful run.
	LastSuccess prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end pipeline run duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		PapersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_total",
			Help:      "New papers reported, by source and category.",
		}, []string{"source", "category"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Source searches that failed.",
		}, []string{"source"}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by operation and status.",
		}, []string{"operation", "status"}),
		LedgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_seen_ids",
			Help:      "Identifiers held in the seen-id ledger.",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

// Gatherer exposes the registry for HTTP handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile dumps all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: failed to write %s: %w", path, err)
	}
	return nil
}
