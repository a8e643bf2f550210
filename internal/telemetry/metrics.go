// Package telemetry defines the Prometheus collectors and the local query
// log used across rdfsearch. All data stays local.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	MutationsTotal      *prometheus.CounterVec
	CommitsTotal        *prometheus.CounterVec
	CommitDuration      prometheus.Histogram
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	QueryResults        *prometheus.HistogramVec
	DegradedTotal       *prometheus.CounterVec
	OutstandingMonitors prometheus.Gauge
	ReplayedOperations  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdfsearch_document_mutations_total",
				Help: "Document writes staged by kind (add, update, delete, bulk).",
			},
			[]string{"kind"},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdfsearch_index_commits_total",
				Help: "Index commits by status.",
			},
			[]string{"status"},
		),
		CommitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rdfsearch_index_commit_duration_seconds",
				Help:    "Index commit latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdfsearch_queries_total",
				Help: "Search evaluations by kind (text, distance, relation) and result type.",
			},
			[]string{"kind", "result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rdfsearch_query_latency_seconds",
				Help:    "Search evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		QueryResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rdfsearch_query_results",
				Help:    "Binding sets produced per search evaluation.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"kind"},
		),
		DegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdfsearch_degraded_results_total",
				Help: "Searches that returned results without requested snippets.",
			},
			[]string{"kind"},
		),
		OutstandingMonitors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rdfsearch_outstanding_reader_monitors",
				Help: "Retired snapshots still held open by readers.",
			},
		),
		ReplayedOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rdfsearch_replayed_operations_total",
				Help: "Buffered operations replayed into the index by status.",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.MutationsTotal,
			m.CommitsTotal,
			m.CommitDuration,
			m.QueriesTotal,
			m.QueryLatency,
			m.QueryResults,
			m.DegradedTotal,
			m.OutstandingMonitors,
			m.ReplayedOperations,
		)
	}
	return m
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordMutations counts staged document writes.
func (m *Metrics) RecordMutations(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MutationsTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordCommit observes one index commit.
func (m *Metrics) RecordCommit(d time.Duration, mutations int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CommitsTotal.WithLabelValues("error").Inc()
		return
	}
	m.CommitsTotal.WithLabelValues("ok").Inc()
	m.CommitDuration.Observe(d.Seconds())
}

// RecordQuery observes one search evaluation.
func (m *Metrics) RecordQuery(kind string, d time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.QueriesTotal.WithLabelValues(kind, "error").Inc()
		return
	case rows == 0:
		m.QueriesTotal.WithLabelValues(kind, "zero_result").Inc()
	default:
		m.QueriesTotal.WithLabelValues(kind, "hit").Inc()
	}
	m.QueryLatency.WithLabelValues(kind).Observe(d.Seconds())
	m.QueryResults.WithLabelValues(kind).Observe(float64(rows))
}

// RecordDegraded counts a search that could not produce requested snippets.
func (m *Metrics) RecordDegraded(kind string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(kind).Inc()
}

// SetOutstandingMonitors reports the retired-but-open snapshot count.
func (m *Metrics) SetOutstandingMonitors(n int) {
	if m == nil {
		return
	}
	m.OutstandingMonitors.Set(float64(n))
}

// RecordReplay counts replayed and discarded buffer operations.
func (m *Metrics) RecordReplay(replayed, discarded int) {
	if m == nil {
		return
	}
	m.ReplayedOperations.WithLabelValues("ok").Add(float64(replayed))
	if discarded > 0 {
		m.ReplayedOperations.WithLabelValues("discarded").Add(float64(discarded))
	}
}
