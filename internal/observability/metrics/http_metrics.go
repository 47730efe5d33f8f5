package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics captures request volume and latency per route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

// HTTPWithConfig returns the singleton HTTP metrics registry using config labels.
func HTTPWithConfig(cfg Config) *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = NewHTTPMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return httpMetrics
}

func NewHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_http_requests_total",
		Help:        "HTTP requests by route and status code.",
		ConstLabels: labels,
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "rentledger_http_request_duration_seconds",
		Help:        "HTTP request latency.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	}, []string{"method", "route"})

	registerer.MustRegister(requests, duration)

	return &HTTPMetrics{
		requests: requests,
		duration: duration,
	}
}

// Observe records one completed request.
func (m *HTTPMetrics) Observe(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// GinMiddleware records request metrics. A nil receiver is a no-op.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
