// Package telemetry exposes Prometheus metrics for the HTTP layer, the
// scoring engine and the caches.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TelemetryConfig struct {
	Namespace      string
	ServiceVersion string
	Environment    string
	// RuntimeMetrics adds Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "tmbridge"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

var (
	durationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
)

// Score layers.
const (
	LayerNamasteTM2 = "namaste_tm2"
	LayerTM2ICD     = "tm2_icd"
	LayerOverall    = "overall"
)

// Provider owns a private registry and the service's collectors.
type Provider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	scores         *prometheus.CounterVec
	confidence     *prometheus.HistogramVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	dbPool         *prometheus.GaugeVec
}

func NewProvider(cfg TelemetryConfig) *Provider {
	cfg.applyDefaults()
	ns := cfg.Namespace

	p := &Provider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", Buckets: durationBuckets,
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "http_active_requests",
			Help: "In-flight HTTP requests.",
		}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "scores_total",
			Help: "Confidence scores computed, by layer.",
		}, []string{"layer"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "score_confidence",
			Help: "Distribution of computed confidences, by layer.", Buckets: confidenceBuckets,
		}, []string{"layer"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_hits_total",
			Help: "Cache hits by tier.",
		}, []string{"tier"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_misses_total",
			Help: "Cache misses by tier.",
		}, []string{"tier"}),
		dbPool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "db_pool_connections",
			Help: "Database pool connections by state.",
		}, []string{"state"}),
	}

	p.registry.MustRegister(
		p.httpRequests, p.httpDuration, p.activeRequests,
		p.scores, p.confidence,
		p.cacheHits, p.cacheMisses,
		p.dbPool,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns, Name: "build_info",
			Help:        "Build metadata.",
			ConstLabels: prometheus.Labels{"version": cfg.ServiceVersion, "environment": cfg.Environment},
		}, func() float64 { return 1 }),
	)
	if cfg.RuntimeMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// ObserveScore records one computed confidence for a layer.
func (p *Provider) ObserveScore(layer string, confidence float64) {
	p.scores.WithLabelValues(layer).Inc()
	p.confidence.WithLabelValues(layer).Observe(confidence)
}

func (p *Provider) CacheHit(tier string)  { p.cacheHits.WithLabelValues(tier).Inc() }
func (p *Provider) CacheMiss(tier string) { p.cacheMisses.WithLabelValues(tier).Inc() }

// SetDBPool records pool connection counts.
func (p *Provider) SetDBPool(active, idle, total int32) {
	p.dbPool.WithLabelValues("active").Set(float64(active))
	p.dbPool.WithLabelValues("idle").Set(float64(idle))
	p.dbPool.WithLabelValues("total").Set(float64(total))
}

// MetricsMiddleware records request counts and latency keyed by the route
// pattern, not the raw path.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
