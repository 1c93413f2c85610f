// Package metrics exposes Prometheus instrumentation for the session core:
// request outcomes by endpoint, refresh attempts, unauthorized events, and
// guard decisions. All hooks are nil-safe so instrumentation stays
// optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "sessioncore").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for resolve duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures the metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "sessioncore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	refreshesTotal    *prometheus.CounterVec
	unauthorizedTotal prometheus.Counter
	guardOutcomes     *prometheus.CounterVec
	resolveDuration   prometheus.Histogram
}

// New registers and returns the session core metrics.
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Authenticated requests by endpoint and status code",
			ConstLabels: cfg.ConstLabels,
		}, []string{"endpoint", "status"}),

		refreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "refreshes_total",
			Help:        "Token refresh attempts by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),

		unauthorizedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "unauthorized_total",
			Help:        "Requests that stayed unauthorized after the refresh-and-retry",
			ConstLabels: cfg.ConstLabels,
		}),

		guardOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "guard_outcomes_total",
			Help:        "Route guard decisions by target role and outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"role", "outcome"}),

		resolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "resolve_duration_seconds",
			Help:        "Session resolution duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
	}
}

// ObserveRequest records one executed request.
func (m *Metrics) ObserveRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
}

// ObserveRefresh records a refresh attempt outcome ("ok", "none", "error").
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshesTotal.WithLabelValues(outcome).Inc()
}

// ObserveUnauthorized records a terminal unauthorized event.
func (m *Metrics) ObserveUnauthorized() {
	if m == nil {
		return
	}
	m.unauthorizedTotal.Inc()
}

// ObserveGuard records a guard decision.
func (m *Metrics) ObserveGuard(role, outcome string) {
	if m == nil {
		return
	}
	m.guardOutcomes.WithLabelValues(role, outcome).Inc()
}

// ObserveResolve records the duration of one session resolution.
func (m *Metrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(d.Seconds())
}
