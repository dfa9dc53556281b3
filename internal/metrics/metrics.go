// Package metrics exposes Prometheus instrumentation for the HTTP surface and
// the batch coordinator.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/chunkembed/internal/batch"
	"github.com/dshills/chunkembed/pkg/types"
)

const namespace = "chunkembed"

// Metrics owns a private registry so several instances (one per test server,
// say) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	BatchesTotal   *prometheus.CounterVec
	BatchDocuments prometheus.Histogram
	BatchChunks    prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
}

// New creates and registers every collector
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		),

		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches processed, by outcome",
			},
			[]string{"outcome"},
		),

		BatchDocuments: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_documents",
				Help:      "Documents per batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		BatchChunks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_chunks",
				Help:      "Chunks embedded per batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_stage_duration_seconds",
				Help:      "Time spent planning and embedding a batch",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
	}
}

// Registry returns the registry backing this instance
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveBatch implements batch.Observer
func (m *Metrics) ObserveBatch(stats batch.Stats, err error) {
	m.BatchesTotal.WithLabelValues(Outcome(err)).Inc()
	m.StageDuration.WithLabelValues("plan").Observe(stats.PlanDuration.Seconds())
	if err != nil {
		return
	}
	m.BatchDocuments.Observe(float64(stats.Documents))
	m.BatchChunks.Observe(float64(stats.Chunks))
	if stats.Chunks > 0 {
		m.StageDuration.WithLabelValues("embed").Observe(stats.EmbedDuration.Seconds())
	}
}

// Outcome maps a batch error onto a low-cardinality label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, types.ErrTokenizerInconsistency):
		return "tokenizer_inconsistency"
	case errors.Is(err, types.ErrEmbeddingPortFailure):
		return "embedding_failure"
	default:
		return "error"
	}
}
