package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// Metrics provides Prometheus metrics for hostsync runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRunStatus *prometheus.GaugeVec

	// Operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Drift metrics
	driftItems *prometheus.GaugeVec

	// Error metrics
	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled collector accepts every call and records nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of executed runs",
			},
			[]string{"direction", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"direction"},
		),
		lastRunStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last run by direction and status",
			},
			[]string{"direction", "status"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of executed operations",
			},
			[]string{"subsystem", "verb", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operation execution in seconds",
				Buckets:   buckets,
			},
			[]string{"subsystem"},
		),
		driftItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "drift_items",
				Help:      "Current number of items per subsystem and drift state",
			},
			[]string{"subsystem", "state"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of fatal errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.lastRunStatus,
		m.operationsTotal,
		m.operationDuration,
		m.driftItems,
		m.errorsTotal,
	)

	return m
}

// Enabled reports whether the collector records anything.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// RecordRun records an executed run and every operation in its report.
func (m *Metrics) RecordRun(direction string, report *engine.ExecutionReport, duration time.Duration) {
	if m.registry == nil || report == nil {
		return
	}
	status := string(report.Status())
	m.runsTotal.WithLabelValues(direction, status).Inc()
	m.runDuration.WithLabelValues(direction).Observe(duration.Seconds())
	m.lastRunStatus.WithLabelValues(direction, status).SetToCurrentTime()

	for _, res := range report.Results {
		m.RecordOperation(res)
	}
}

// RecordOperation records the outcome of one operation.
func (m *Metrics) RecordOperation(res engine.OperationResult) {
	if m.registry == nil {
		return
	}
	result := "success"
	if !res.Success {
		result = "failure"
	}
	m.operationsTotal.WithLabelValues(res.Operation.Subsystem, string(res.Operation.Verb), result).Inc()
	m.operationDuration.WithLabelValues(res.Operation.Subsystem).Observe(res.Duration.Seconds())
}

// SetDrift publishes the status rollup of one subsystem.
func (m *Metrics) SetDrift(subsystem string, status engine.ComponentStatus) {
	if m.registry == nil {
		return
	}
	m.driftItems.WithLabelValues(subsystem, "synced").Set(float64(status.Synced))
	m.driftItems.WithLabelValues(subsystem, "pending").Set(float64(status.Pending))
	m.driftItems.WithLabelValues(subsystem, "to_update").Set(float64(status.ToUpdate))
	m.driftItems.WithLabelValues(subsystem, "untracked").Set(float64(status.Untracked))
}

// RecordError records a fatal error by its engine class and code.
func (m *Metrics) RecordError(err error) {
	if m.registry == nil || err == nil {
		return
	}
	class, code := "unclassified", ""
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		class, code = string(ee.Class), ee.Code
	}
	m.errorsTotal.WithLabelValues(class, code).Inc()
}

// Gatherer returns the registry, or nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the metrics to the configured textfile path.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.TextfilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on the configured address until ctx is done.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server error: %w", err)
	}
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
