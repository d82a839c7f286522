package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		httpRequestsTotal,
		httpRequestDuration,
		rateLimitRejections,
	)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_ms",
			Help:    "HTTP request duration distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 5000, 30000, 120000},
		},
		[]string{"method", "path"},
	)

	rateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Chat requests rejected by the per-user rate limit.",
		},
	)
)

func ObserveHTTPRequest(method, path string, status, durationMs int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(float64(durationMs))
}

func RateLimitRejected() {
	rateLimitRejections.Inc()
}
