package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/offer"
)

const namespace = "negotiation"

// Collector owns the service metrics and the registry they are exposed from.
type Collector struct {
	registry       *prometheus.Registry
	decisions      *prometheus.CounterVec
	extractions    *prometheus.CounterVec
	rateLimited    prometheus.Counter
	discounts      prometheus.Counter
	turnDurations  prometheus.Histogram
	httpDurations  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	activeRequests prometheus.Gauge
}

// New registers every metric on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Negotiation decisions by status and reaction category.",
		}, []string{"status", "category"}),
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Price extractions by the extractor that produced them.",
		}, []string{"source"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Submissions rejected by the session rate limit.",
		}),
		discounts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_codes_issued_total",
			Help:      "Discount codes issued for accepted offers.",
		}),
		turnDurations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent processing one negotiation turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_durations_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"path", "method", "status"}),
		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "HTTP requests in flight.",
		}),
	}
}

// ObserveDecision implements offer.Observer.
func (c *Collector) ObserveDecision(_ context.Context, event offer.Event) {
	if c == nil {
		return
	}
	category := string(event.Decision.Category)
	if category == "" {
		category = "none"
	}
	c.decisions.WithLabelValues(string(event.Decision.Status), category).Inc()
	if event.Source != "" {
		c.extractions.WithLabelValues(string(event.Source)).Inc()
	}
	if event.Decision.Reason == negotiation.ReasonRateLimited {
		c.rateLimited.Inc()
	}
	if event.Decision.DiscountCode != "" {
		c.discounts.Inc()
	}
	c.turnDurations.Observe(event.Duration.Seconds())
}

// RequestStarted marks an HTTP request in flight and returns the callback that
// records its outcome.
func (c *Collector) RequestStarted() func(path, method string, status int) {
	if c == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	c.activeRequests.Inc()
	return func(path, method string, status int) {
		c.activeRequests.Dec()
		code := strconv.Itoa(status)
		c.httpDurations.WithLabelValues(path, method, code).Observe(time.Since(start).Seconds())
		c.httpRequests.WithLabelValues(path, method, code).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
