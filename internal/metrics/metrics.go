// Package metrics holds the Prometheus instruments of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coderag"

// Build outcomes
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeBusy    = "busy"
)

// Metrics owns an independent registry, so several instances never
// conflict
type Metrics struct {
	registry *prometheus.Registry

	filesIndexed     prometheus.Counter
	chunksProduced   prometheus.Counter
	builds           *prometheus.CounterVec
	buildDuration    prometheus.Histogram
	queries          *prometheus.CounterVec
	retrievalLatency *prometheus.HistogramVec
	documents        *prometheus.GaugeVec
}

// New creates and registers every instrument
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_indexed_total",
			Help:      "Files read and chunked by ingestion runs.",
		}),
		chunksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Chunks produced by ingestion runs.",
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by outcome.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Wall time of successful index builds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Retrieval queries by search mode.",
		}, []string{"mode"}),
		retrievalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Latency of retrieval queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		documents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_documents",
			Help:      "Documents currently held by each index.",
		}, []string{"index"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.filesIndexed,
		m.chunksProduced,
		m.builds,
		m.buildDuration,
		m.queries,
		m.retrievalLatency,
		m.documents,
	)
	return m
}

// Registry exposes the registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBuild records one build attempt
func (m *Metrics) ObserveBuild(outcome string, files, chunks int, d time.Duration) {
	m.builds.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSuccess {
		return
	}
	m.filesIndexed.Add(float64(files))
	m.chunksProduced.Add(float64(chunks))
	m.buildDuration.Observe(d.Seconds())
}

// ObserveQuery records one retrieval
func (m *Metrics) ObserveQuery(mode string, d time.Duration) {
	m.queries.WithLabelValues(mode).Inc()
	m.retrievalLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// SetDocuments publishes the document count of both indices
func (m *Metrics) SetDocuments(vector, keyword int) {
	m.documents.WithLabelValues("vector").Set(float64(vector))
	m.documents.WithLabelValues("keyword").Set(float64(keyword))
}
