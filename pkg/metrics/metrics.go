package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestration core
type Metrics struct {
	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	RetriesTotal       *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec
	BreakerOpen        *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Orchestration metrics
	ExecutesTotal   *prometheus.CounterVec
	ExecuteDuration *prometheus.HistogramVec

	// Telemetry metrics
	ReportedFailures *prometheus.CounterVec

	// Connectivity metrics
	Online prometheus.Gauge

	registry *prometheus.Registry
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "pkgfleet",
		Subsystem: "orchestrator",
	}
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	registry := prometheus.NewRegistry()
	factory := promauto(registry)

	m := &Metrics{
		registry: registry,

		InvocationsTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "invocations_total",
			Help:      "Backend invocations by backend, operation and result status",
		}, []string{"backend", "operation", "status"}),

		InvocationDuration: factory.histogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "invocation_duration_seconds",
			Help:      "Backend invocation duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),

		RetriesTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "retries_total",
			Help:      "Retry attempts by backend and operation",
		}, []string{"backend", "operation"}),

		BreakerTransitions: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"backend", "from", "to"}),

		BreakerOpen: factory.gaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "breaker_open",
			Help:      "1 when the backend's circuit is open",
		}, []string{"backend"}),

		CacheHitsTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_hits_total",
			Help:      "Fallback cache hits by backend and operation",
		}, []string{"backend", "operation"}),

		CacheMissesTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_misses_total",
			Help:      "Fallback cache misses by backend and operation",
		}, []string{"backend", "operation"}),

		ExecutesTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "executes_total",
			Help:      "Orchestrated operations by operation and summary",
		}, []string{"operation", "summary"}),

		ExecuteDuration: factory.histogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "execute_duration_seconds",
			Help:      "End-to-end orchestrated operation duration",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),

		ReportedFailures: factory.counterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "reported_failures_total",
			Help:      "Failures forwarded to the telemetry sink",
		}, []string{"backend", "operation", "kind"}),

		Online: factory.gauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "online",
			Help:      "1 when the connectivity monitor reports online",
		}),
	}

	return m
}

// RecordInvocation records one backend invocation outcome
func (m *Metrics) RecordInvocation(backendID, operation, status string, duration time.Duration) {
	m.InvocationsTotal.WithLabelValues(backendID, operation, status).Inc()
	m.InvocationDuration.WithLabelValues(backendID, operation).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt
func (m *Metrics) RecordRetry(backendID, operation string) {
	m.RetriesTotal.WithLabelValues(backendID, operation).Inc()
}

// RecordBreakerTransition records a circuit state change
func (m *Metrics) RecordBreakerTransition(backendID, from, to string) {
	m.BreakerTransitions.WithLabelValues(backendID, from, to).Inc()
	if to == "OPEN" {
		m.BreakerOpen.WithLabelValues(backendID).Set(1)
	} else {
		m.BreakerOpen.WithLabelValues(backendID).Set(0)
	}
}

// RecordCacheHit records a fallback cache hit
func (m *Metrics) RecordCacheHit(backendID, operation string) {
	m.CacheHitsTotal.WithLabelValues(backendID, operation).Inc()
}

// RecordCacheMiss records a fallback cache miss
func (m *Metrics) RecordCacheMiss(backendID, operation string) {
	m.CacheMissesTotal.WithLabelValues(backendID, operation).Inc()
}

// RecordExecute records one orchestrated operation
func (m *Metrics) RecordExecute(operation, summary string, duration time.Duration) {
	m.ExecutesTotal.WithLabelValues(operation, summary).Inc()
	m.ExecuteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReportedFailure records a failure forwarded to telemetry
func (m *Metrics) RecordReportedFailure(backendID, operation, kind string) {
	m.ReportedFailures.WithLabelValues(backendID, operation, kind).Inc()
}

// SetOnline records the connectivity state
func (m *Metrics) SetOnline(online bool) {
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

// Handler returns a gin handler serving the metrics endpoint
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// factory wraps a registry so metric construction reads flat
type factory struct {
	registry *prometheus.Registry
}

func promauto(registry *prometheus.Registry) factory {
	return factory{registry: registry}
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	f.registry.MustRegister(v)
	return v
}

func (f factory) gaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(opts, labels)
	f.registry.MustRegister(v)
	return v
}

func (f factory) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	f.registry.MustRegister(g)
	return g
}

func (f factory) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	f.registry.MustRegister(v)
	return v
}
