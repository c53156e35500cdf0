package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bodytype"

// Metrics owns a private registry so tests can create as many as they need.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	bundleInfo         *prometheus.GaugeVec
	reloads            *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
}

// NewMetrics registers every collector, including the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by outcome and predicted body type.",
		}, []string{"status", "body_type"}),
		predictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent validating, encoding, scaling and classifying one request.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		bundleInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bundle_info",
			Help:      "The artifact bundle being served; always 1.",
		}, []string{"run_id", "model_type", "label_source"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_reloads_total",
			Help:      "Bundle reload attempts by result.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_lookups_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions,
		m.predictionDuration,
		m.httpRequests,
		m.httpDuration,
		m.bundleInfo,
		m.reloads,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePrediction(status, bodyType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(status, bodyType).Inc()
	m.predictionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveHTTP(method, path string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// SetBundle replaces the bundle_info series.
func (m *Metrics) SetBundle(runID, modelType, labelSource string) {
	if m == nil {
		return
	}
	m.bundleInfo.Reset()
	m.bundleInfo.WithLabelValues(runID, modelType, labelSource).Set(1)
}

func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
