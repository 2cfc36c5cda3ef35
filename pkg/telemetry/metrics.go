package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for simulation runs. A Metrics created
// from a disabled configuration accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram
	activeRuns    prometheus.Gauge

	// Simulation metrics
	simulationsStarted  *prometheus.CounterVec
	simulationsFinished *prometheus.CounterVec
	simulationDuration  *prometheus.HistogramVec
	dataFlushes         prometheus.Counter
	dataPoints          prometheus.Counter
	workers             *prometheus.GaugeVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Model library
	modelsLoaded prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of simulation runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of simulation runs completed",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of simulation runs in seconds",
			Buckets:   buckets,
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Current number of active runs",
		}),

		simulationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_started_total",
				Help:      "Total number of simulation requests handed to an engine",
			},
			[]string{"analysis"},
		),
		simulationsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_finished_total",
				Help:      "Total number of simulation requests that reached a terminal status",
			},
			[]string{"analysis", "status"},
		),
		simulationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "simulation_duration_seconds",
				Help:      "Duration of simulation requests in seconds",
				Buckets:   buckets,
			},
			[]string{"analysis"},
		),
		dataFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_flushes_total",
			Help:      "Total number of data events emitted",
		}),
		dataPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_points_total",
			Help:      "Total number of data points emitted",
		}),
		workers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers",
				Help:      "Current number of workers by status",
			},
			[]string{"status"},
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

		modelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "Number of device models in the library",
		}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.simulationsStarted,
		m.simulationsFinished,
		m.simulationDuration,
		m.dataFlushes,
		m.dataPoints,
		m.workers,
		m.errorsByClass,
		m.errorsByCode,
		m.modelsLoaded,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if !m.enabled() {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run. outcome is "done" or
// "cancelled".
func (m *Metrics) RecordRunCompleted(outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Simulation Metrics

// RecordSimulationStarted records a request handed to an engine.
func (m *Metrics) RecordSimulationStarted(analysis string) {
	if !m.enabled() {
		return
	}
	m.simulationsStarted.WithLabelValues(analysis).Inc()
}

// RecordSimulationFinished records a request's terminal status.
func (m *Metrics) RecordSimulationFinished(analysis, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.simulationsFinished.WithLabelValues(analysis, status).Inc()
	m.simulationDuration.WithLabelValues(analysis).Observe(duration.Seconds())
}

// RecordDataFlush records one data event carrying points values.
func (m *Metrics) RecordDataFlush(points int) {
	if !m.enabled() {
		return
	}
	m.dataFlushes.Inc()
	m.dataPoints.Add(float64(points))
}

// SetWorkers sets the number of workers in a status.
func (m *Metrics) SetWorkers(status string, count float64) {
	if !m.enabled() {
		return
	}
	m.workers.WithLabelValues(status).Set(count)
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// SetModelsLoaded sets the size of the model library.
func (m *Metrics) SetModelsLoaded(count int) {
	if !m.enabled() {
		return
	}
	m.modelsLoaded.Set(float64(count))
}

// Registry returns the registry the metrics are registered with, or nil
// when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is done. It returns
// immediately when metrics are disabled or no listen address is set.
func (m *Metrics) Serve(ctx context.Context, logger zerolog.Logger) {
	if !m.enabled() || m.config.ListenAddress == "" {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info().Str("addr", server.Addr).Str("path", path).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
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
