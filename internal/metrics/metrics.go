// Package metrics holds the Prometheus collectors PitchRadar exports. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pitchradar"

// Metrics wraps a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	analysisDuration *prometheus.HistogramVec
	analysisTotal    *prometheus.CounterVec
	enrichmentTotal  *prometheus.CounterVec
	runDuration      prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	storageWrites    *prometheus.CounterVec
}

// New creates collectors on a fresh registry, including Go runtime metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of one category analysis.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"category"}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "Category analyses by outcome.",
		}, []string{"category", "outcome"}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Enricher calls (news, market, linkedin, graph) by outcome.",
		}, []string{"enricher", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full analysis run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		storageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_writes_total",
			Help:      "Object storage writes by scheme and outcome.",
		}, []string{"scheme", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analysisDuration,
		m.analysisTotal,
		m.enrichmentTotal,
		m.runDuration,
		m.httpRequests,
		m.storageWrites,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAnalysis records one category analysis.
func (m *Metrics) ObserveAnalysis(category string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(category).Observe(d.Seconds())
	m.analysisTotal.WithLabelValues(category, outcome(err)).Inc()
}

// ObserveEnrichment records one enricher call.
func (m *Metrics) ObserveEnrichment(enricher string, err error) {
	if m == nil {
		return
	}
	m.enrichmentTotal.WithLabelValues(enricher, outcome(err)).Inc()
}

// ObserveRun records a completed pipeline run.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// ObserveRequest records an HTTP response.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveStorageWrite records an object storage write.
func (m *Metrics) ObserveStorageWrite(scheme string, err error) {
	if m == nil {
		return
	}
	m.storageWrites.WithLabelValues(scheme, outcome(err)).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
