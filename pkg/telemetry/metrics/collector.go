package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "gatehouse"

// Collector owns the metric families and their registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	upstreamFailures   *prometheus.CounterVec
	tlsHandshakeErrors prometheus.Counter
	certExpiryDays     *prometheus.GaugeVec
	configReloads      *prometheus.CounterVec
	cacheEvents        *prometheus.CounterVec
}

// NewCollector creates and registers every metric family on a fresh
// registry, alongside the standard process and Go runtime collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Proxied requests by application, upstream, and response status",
			},
			[]string{"app", "upstream", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from request receipt to response completion",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"app"},
		),
		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_failures_total",
				Help:      "Transport-level upstream failures",
			},
			[]string{"upstream"},
		),
		tlsHandshakeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tls_handshake_errors_total",
				Help:      "Failed TLS handshakes, including unknown SNI",
			},
		),
		certExpiryDays: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "certificate_expiry_days",
				Help:      "Days until the served certificate expires",
			},
			[]string{"server_name"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Configuration reload attempts by result",
			},
			[]string{"result"},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Response cache hits, misses, and stores",
			},
			[]string{"event"},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.upstreamFailures,
		c.tlsHandshakeErrors,
		c.certExpiryDays,
		c.configReloads,
		c.cacheEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRequest records one completed exchange.
func (c *Collector) ObserveRequest(app, upstream string, status int, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(app, upstream, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(app).Observe(elapsed.Seconds())
}

// ObserveUpstreamFailure records a transport failure for an upstream.
func (c *Collector) ObserveUpstreamFailure(upstream string) {
	c.upstreamFailures.WithLabelValues(upstream).Inc()
}

// ObserveHandshakeError records a failed TLS handshake.
func (c *Collector) ObserveHandshakeError() {
	c.tlsHandshakeErrors.Inc()
}

// SetCertExpiry publishes the expiry margin of a certificate.
func (c *Collector) SetCertExpiry(serverName string, days int) {
	c.certExpiryDays.WithLabelValues(serverName).Set(float64(days))
}

// ObserveReload records a configuration reload attempt.
func (c *Collector) ObserveReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.configReloads.WithLabelValues(result).Inc()
}

// ObserveCache records a response cache event: "hit", "miss", "store".
func (c *Collector) ObserveCache(event string) {
	c.cacheEvents.WithLabelValues(event).Inc()
}
