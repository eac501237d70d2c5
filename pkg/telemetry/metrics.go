package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for genprop.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec

	// Sample metrics
	samplesAssigned  *prometheus.CounterVec
	sampleDuration   *prometheus.HistogramVec
	entriesFlushed   prometheus.Counter
	propertyResults  *prometheus.CounterVec
	stepResults      *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeSamples prometheus.Gauge

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

		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of result table builds",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of result table builds in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		samplesAssigned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_assigned_total",
				Help:      "Total number of samples bootstrapped",
			},
			[]string{"status"},
		),
		sampleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sample_assignment_duration_seconds",
				Help:      "Duration of per-sample synchronization and assignment in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		entriesFlushed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_identifiers_flushed_total",
				Help:      "Total number of property identifiers flushed while synchronizing caches",
			},
		),
		propertyResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "property_results_total",
				Help:      "Total number of property results assigned, by result",
			},
			[]string{"result"},
		),
		stepResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_results_total",
				Help:      "Total number of step results assigned, by result",
			},
			[]string{"result"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeSamples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_samples",
				Help:      "Current number of samples being bootstrapped",
			},
		),
	}

	registry.MustRegister(
		m.buildsCompleted,
		m.buildDuration,
		m.samplesAssigned,
		m.sampleDuration,
		m.entriesFlushed,
		m.propertyResults,
		m.stepResults,
		m.errorsByClass,
		m.errorsByCode,
		m.activeSamples,
	)

	return m, nil
}

// Build Metrics

// RecordBuildCompleted records a completed build with its status and duration.
func (m *Metrics) RecordBuildCompleted(status string, duration time.Duration) {
	if m == nil || m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Sample Metrics

// RecordSampleStarted marks a sample as in progress.
func (m *Metrics) RecordSampleStarted() {
	if m == nil || m.activeSamples == nil {
		return
	}
	m.activeSamples.Inc()
}

// RecordSampleAssigned records a finished sample with its status and duration.
func (m *Metrics) RecordSampleAssigned(status string, duration time.Duration) {
	if m == nil || m.samplesAssigned == nil {
		return
	}
	m.samplesAssigned.WithLabelValues(status).Inc()
	m.sampleDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeSamples.Dec()
}

// RecordFlushed records identifiers dropped by cache synchronization.
func (m *Metrics) RecordFlushed(count int) {
	if m == nil || m.entriesFlushed == nil {
		return
	}
	m.entriesFlushed.Add(float64(count))
}

// RecordPropertyResult counts an assigned property result.
func (m *Metrics) RecordPropertyResult(result string) {
	if m == nil || m.propertyResults == nil {
		return
	}
	m.propertyResults.WithLabelValues(result).Inc()
}

// RecordStepResult counts an assigned step result.
func (m *Metrics) RecordStepResult(result string) {
	if m == nil || m.stepResults == nil {
		return
	}
	m.stepResults.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
// It does nothing when metrics are disabled or no listen address is set.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("metrics server error")
		}
	}()

	return nil
}
