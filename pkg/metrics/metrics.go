// Package metrics exposes Prometheus instrumentation shared by the
// transport server and the event processor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the metrics set.
type Config struct {
	// Namespace is the metrics namespace (default: "nasc").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event processing duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures the metrics set.
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

// WithBuckets sets the event duration histogram buckets.
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

// Metrics is the instrumented counter/gauge/histogram set.
type Metrics struct {
	// EventsTotal counts processed event messages by type and event name.
	EventsTotal *prometheus.CounterVec

	// PatchesTotal counts emitted patches by action.
	PatchesTotal *prometheus.CounterVec

	// ErrorPatchesTotal counts messages converted to error patches.
	ErrorPatchesTotal prometheus.Counter

	// EventDuration observes end-to-end message processing time.
	EventDuration prometheus.Histogram

	// StreamClients tracks currently connected SSE push channels.
	StreamClients prometheus.Gauge

	// SocketClients tracks currently connected bidirectional sockets.
	SocketClients prometheus.Gauge

	// DroppedPatches counts patch lists dropped because the client's push
	// channel was absent.
	DroppedPatches prometheus.Counter
}

// New creates and registers the metrics set.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "nasc",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "events_total",
			Help:        "Total event messages processed.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type", "event"}),
		PatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "patches_total",
			Help:        "Total patches emitted.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"action"}),
		ErrorPatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "error_patches_total",
			Help:        "Messages that resulted in an error patch.",
			ConstLabels: cfg.ConstLabels,
		}),
		EventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event message processing duration.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "stream_clients",
			Help:        "Currently connected SSE push channels.",
			ConstLabels: cfg.ConstLabels,
		}),
		SocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "socket_clients",
			Help:        "Currently connected bidirectional sockets.",
			ConstLabels: cfg.ConstLabels,
		}),
		DroppedPatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "dropped_patch_lists_total",
			Help:        "Patch lists dropped because no push channel was connected.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}
