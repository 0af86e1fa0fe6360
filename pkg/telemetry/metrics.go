package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for fitting and prediction.
type Metrics struct {
	config MetricsConfig

	// Fit metrics
	fits        *prometheus.CounterVec
	fitDuration *prometheus.HistogramVec

	// Prediction metrics
	predictions        *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	pathExpansions     *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fits_total",
				Help:      "Total number of model fits",
			},
			[]string{"family", "engine", "status"},
		),
		fitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fit_duration_seconds",
				Help:      "Duration of native model fitting in seconds",
				Buckets:   buckets,
			},
			[]string{"family", "engine"},
		),

		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Total number of predict calls",
			},
			[]string{"family", "engine", "type", "status"},
		),
		predictionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Duration of predict calls in seconds",
				Buckets:   buckets,
			},
			[]string{"family", "engine", "type"},
		),
		pathExpansions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "path_expansions_total",
				Help:      "Total number of multi-penalty predictions",
			},
			[]string{"type", "mode"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.fits,
		m.fitDuration,
		m.predictions,
		m.predictionDuration,
		m.pathExpansions,
		m.errorsByKind,
	)

	return m, nil
}

// RecordFit records a fit outcome and the native fit duration.
func (m *Metrics) RecordFit(family, engine, status string, duration time.Duration) {
	if m.fits == nil {
		return
	}
	m.fits.WithLabelValues(family, engine, status).Inc()
	if status == "success" {
		m.fitDuration.WithLabelValues(family, engine).Observe(duration.Seconds())
	}
}

// RecordPrediction records a predict call.
func (m *Metrics) RecordPrediction(family, engine, typ, status string, duration time.Duration) {
	if m.predictions == nil {
		return
	}
	m.predictions.WithLabelValues(family, engine, typ, status).Inc()
	m.predictionDuration.WithLabelValues(family, engine, typ).Observe(duration.Seconds())
}

// RecordPathExpansion records a multi-penalty prediction. Mode is "batch"
// for a single native call and "fanout" for per-penalty calls.
func (m *Metrics) RecordPathExpansion(typ, mode string) {
	if m.pathExpansions == nil {
		return
	}
	m.pathExpansions.WithLabelValues(typ, mode).Inc()
}

// RecordError records an error by its kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// WriteTextfile dumps the registry in Prometheus text format, for use with
// a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
