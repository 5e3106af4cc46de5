package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsdc/pkg/constants"
)

// PrivacyMetrics provides Prometheus-based metrics collection for the
// anonymization engines, the differential privacy engine, the budget
// ledger, and the access controller. Collectors work in-process; the
// exposition server is optional and disabled by default.
type PrivacyMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	anonymizationRunsTotal *prometheus.CounterVec
	anonymizationDuration  *prometheus.HistogramVec
	suppressedRecordsTotal *prometheus.CounterVec
	retentionRate          *prometheus.GaugeVec
	dpQueriesTotal         *prometheus.CounterVec
	budgetConsumedEpsilon  prometheus.Gauge
	budgetRemainingEpsilon prometheus.Gauge
	accessChecksTotal      *prometheus.CounterVec
}

// PrometheusConfig configures Prometheus metrics.
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// NewPrivacyMetrics creates a new metrics instance with its own registry.
func NewPrivacyMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrivacyMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrivacyMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Start starts the metrics exposition server when enabled.
func (pm *PrivacyMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics exposition disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	pm.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pm.config.Port),
		Handler: mux,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the metrics exposition server.
func (pm *PrivacyMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// RecordAnonymizationRun counts one engine run and its duration.
func (pm *PrivacyMetrics) RecordAnonymizationRun(engine, status string, duration time.Duration) {
	pm.anonymizationRunsTotal.WithLabelValues(engine, status).Inc()
	pm.anonymizationDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordSuppressedRecords counts records suppressed by an engine run.
func (pm *PrivacyMetrics) RecordSuppressedRecords(engine string, count int) {
	pm.suppressedRecordsTotal.WithLabelValues(engine).Add(float64(count))
}

// SetRetentionRate reports the share of records an engine run retained.
func (pm *PrivacyMetrics) SetRetentionRate(engine string, rate float64) {
	pm.retentionRate.WithLabelValues(engine).Set(rate)
}

// RecordDPQuery counts one differentially private query.
func (pm *PrivacyMetrics) RecordDPQuery(queryType, status string) {
	pm.dpQueriesTotal.WithLabelValues(queryType, status).Inc()
}

// SetBudgetConsumption mirrors the budget ledger state.
func (pm *PrivacyMetrics) SetBudgetConsumption(consumed, remaining float64) {
	pm.budgetConsumedEpsilon.Set(consumed)
	pm.budgetRemainingEpsilon.Set(remaining)
}

// RecordAccessCheck counts one permission check decision.
func (pm *PrivacyMetrics) RecordAccessCheck(role string, granted bool) {
	decision := "denied"
	if granted {
		decision = "granted"
	}
	pm.accessChecksTotal.WithLabelValues(role, decision).Inc()
}

// GetRegistry returns the Prometheus registry.
func (pm *PrivacyMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// GetConfig returns the configuration.
func (pm *PrivacyMetrics) GetConfig() *PrometheusConfig {
	return pm.config
}

func (pm *PrivacyMetrics) initializeMetrics() {
	namespace := pm.config.Namespace

	pm.anonymizationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anonymization_runs_total",
			Help:      "Total number of anonymization engine runs",
		},
		[]string{"engine", "status"},
	)

	pm.anonymizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "anonymization_duration_seconds",
			Help:      "Anonymization run duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"engine"},
	)

	pm.suppressedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_records_total",
			Help:      "Total number of records suppressed by anonymization",
		},
		[]string{"engine"},
	)

	pm.retentionRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retention_rate",
			Help:      "Share of records retained by the latest anonymization run",
		},
		[]string{"engine"},
	)

	pm.dpQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dp_queries_total",
			Help:      "Total number of differentially private queries",
		},
		[]string{"query_type", "status"},
	)

	pm.budgetConsumedEpsilon = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "privacy_budget_consumed_epsilon",
			Help:      "Epsilon consumed from the privacy budget",
		},
	)

	pm.budgetRemainingEpsilon = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "privacy_budget_remaining_epsilon",
			Help:      "Epsilon remaining in the privacy budget",
		},
	)

	pm.accessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_checks_total",
			Help:      "Total number of access control decisions",
		},
		[]string{"role", "decision"},
	)
}

func (pm *PrivacyMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.anonymizationRunsTotal,
		pm.anonymizationDuration,
		pm.suppressedRecordsTotal,
		pm.retentionRate,
		pm.dpQueriesTotal,
		pm.budgetConsumedEpsilon,
		pm.budgetRemainingEpsilon,
		pm.accessChecksTotal,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   false,
		Port:      constants.DefaultMetricsPort,
		Path:      "/metrics",
		Namespace: "tabsdc",
	}
}
