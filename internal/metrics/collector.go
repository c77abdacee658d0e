package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates Prometheus metrics for the cache engine. The
// engine owns no network surface, so the collector only maintains a
// registry; embedding applications expose it however they see fit.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	lookupCounter     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	evictionCounter   *prometheus.CounterVec
	promotionCounter  *prometheus.CounterVec
	entriesGauge      *prometheus.GaugeVec
	sizeGauge         *prometheus.GaugeVec
	degradedGauge     prometheus.Gauge
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewCollector creates a new metrics collector. A disabled collector is
// returned when config.Enabled is false; its record methods are no-ops.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "semcache",
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()

	collector := &Collector{
		config:   config,
		registry: registry,
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.lookupCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and outcome",
		},
		[]string{"tier", "result"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency by tier and operation",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"tier", "operation"},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "evictions_total",
			Help:      "Entries evicted or expired by tier",
		},
		[]string{"tier"},
	)

	c.promotionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "promotions_total",
			Help:      "Entries promoted to faster tiers by source tier",
		},
		[]string{"from_tier"},
	)

	c.entriesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "entries",
			Help:      "Current entry count by tier",
		},
		[]string{"tier"},
	)

	c.sizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "size_bytes",
			Help:      "Approximate stored bytes by tier",
		},
		[]string{"tier"},
	)

	c.degradedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "remote_degraded",
			Help:      "1 when the remote tier is in degraded mode, 0 otherwise",
		},
	)
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.lookupCounter,
		c.operationDuration,
		c.evictionCounter,
		c.promotionCounter,
		c.entriesGauge,
		c.sizeGauge,
		c.degradedGauge,
	}

	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the underlying Prometheus registry, or nil when the
// collector is disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// RecordLookup records a lookup outcome ("hit", "miss", "expired",
// "stale_hash") against a tier.
func (c *Collector) RecordLookup(tier, result string) {
	if !c.Enabled() {
		return
	}
	c.lookupCounter.WithLabelValues(tier, result).Inc()
}

// ObserveOperation records the latency of a tier operation.
func (c *Collector) ObserveOperation(tier, operation string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.operationDuration.WithLabelValues(tier, operation).Observe(duration.Seconds())
}

// RecordEviction counts an eviction or expiry in a tier.
func (c *Collector) RecordEviction(tier string) {
	if !c.Enabled() {
		return
	}
	c.evictionCounter.WithLabelValues(tier).Inc()
}

// RecordPromotion counts an entry promoted from a slower tier.
func (c *Collector) RecordPromotion(fromTier string) {
	if !c.Enabled() {
		return
	}
	c.promotionCounter.WithLabelValues(fromTier).Inc()
}

// SetEntries publishes the current entry count for a tier.
func (c *Collector) SetEntries(tier string, count int) {
	if !c.Enabled() {
		return
	}
	c.entriesGauge.WithLabelValues(tier).Set(float64(count))
}

// SetSizeBytes publishes the approximate stored bytes for a tier.
func (c *Collector) SetSizeBytes(tier string, size int64) {
	if !c.Enabled() {
		return
	}
	c.sizeGauge.WithLabelValues(tier).Set(float64(size))
}

// SetDegraded publishes the remote tier degraded state.
func (c *Collector) SetDegraded(degraded bool) {
	if !c.Enabled() {
		return
	}
	if degraded {
		c.degradedGauge.Set(1)
	} else {
		c.degradedGauge.Set(0)
	}
}
