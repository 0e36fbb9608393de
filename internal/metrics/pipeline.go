// Package metrics exposes Prometheus metrics for capture processing.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

// PipelineMetrics are the capture metrics on a private registry.
type PipelineMetrics struct {
	registry *prometheus.Registry

	capturesTotal    *prometheus.CounterVec
	captureDuration  *prometheus.HistogramVec
	capturesInFlight prometheus.Gauge
	fieldFailures    *prometheus.CounterVec
	partialRecords   prometheus.Counter
	sourceFetches    *prometheus.CounterVec
}

// NewPipelineMetrics registers every collector on a new registry.
func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	capturesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creek",
			Subsystem: "pipeline",
			Name:      "captures_total",
			Help:      "Total processed captures by status.",
		},
		[]string{"service", "status"},
	)
	captureDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creek",
			Subsystem: "pipeline",
			Name:      "capture_duration_seconds",
			Help:      "Capture processing duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	capturesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creek",
			Subsystem: "pipeline",
			Name:      "captures_in_flight",
			Help:      "Number of captures being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	fieldFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creek",
			Subsystem: "pipeline",
			Name:      "field_failures_total",
			Help:      "Fields omitted from records by field and failure code.",
		},
		[]string{"service", "field", "code"},
	)
	partialRecords := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creek",
			Subsystem: "pipeline",
			Name:      "partial_records_total",
			Help:      "Records cut short by a deadline or cancellation.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sourceFetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creek",
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Image source fetches by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(capturesTotal, captureDuration, capturesInFlight, fieldFailures, partialRecords, sourceFetches)

	return &PipelineMetrics{
		registry:         registry,
		capturesTotal:    capturesTotal,
		captureDuration:  captureDuration,
		capturesInFlight: capturesInFlight,
		fieldFailures:    fieldFailures,
		partialRecords:   partialRecords,
		sourceFetches:    sourceFetches,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for embedding extra collectors.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartCapture marks a capture in flight. Pair with FinishCapture.
func (m *PipelineMetrics) StartCapture() {
	m.capturesInFlight.Inc()
}

// FinishCapture records the outcome of one capture. rec may be nil when err
// is set.
func (m *PipelineMetrics) FinishCapture(service string, duration time.Duration, rec *record.Record, err error) {
	m.capturesInFlight.Dec()

	status := Status(err)
	m.capturesTotal.WithLabelValues(service, status).Inc()
	m.captureDuration.WithLabelValues(service, status).Observe(duration.Seconds())

	if rec == nil {
		return
	}
	for _, ff := range rec.Failures() {
		m.fieldFailures.WithLabelValues(service, string(ff.ID), string(ff.Code)).Inc()
	}
	if rec.Partial() {
		m.partialRecords.Inc()
	}
}

// ObserveFetch counts one image source fetch by outcome.
func (m *PipelineMetrics) ObserveFetch(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sourceFetches.WithLabelValues(service, status).Inc()
}

// Status is the metric label for an outcome: "success", the lower-cased
// failure code, or "error" for unclassified errors.
func Status(err error) string {
	if err == nil {
		return "success"
	}
	if code := failure.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}
