package middleware

// Prometheus collectors for HTTP traffic and the request pipeline. Route
// labels use the registered pattern, so label cardinality stays bounded.

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tbourn/go-service-shell/internal/apperr"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})

	// 256B up to 4MiB.
	responseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Size of HTTP responses in bytes.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "path"})

	// sessionOutcomes is recorded by DBSession: commit, rollback,
	// commit_failed, begin_failed, panic.
	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_session_outcomes_total",
		Help: "Request database sessions by outcome.",
	}, []string{"outcome"})

	// apiErrors is recorded by RequestLogging. The code set is closed.
	apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Classified errors recorded on API requests.",
	}, []string{"code"})
)

// observeErrorCodes counts the errors of one request by code. Unclassified
// errors count as SYSTEM_ERROR, which is what the client is shown.
func observeErrorCodes(errs []*gin.Error) {
	for _, e := range errs {
		code := apperr.CodeSystemError
		if ae, ok := apperr.As(e.Err); ok {
			code = ae.Code
		} else if p, ok := e.Err.(interface{ ErrorCode() string }); ok {
			code = p.ErrorCode()
		}
		apiErrors.WithLabelValues(code).Inc()
	}
}

// routeLabel is the matched route pattern, or the raw path when nothing
// matched.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Metrics records count, latency and response size per method and route,
// plus the number of requests in flight. Expose them with promhttp.Handler.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()
		start := time.Now()

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			responseBytes.WithLabelValues(method, path).Observe(float64(n))
		}
	}
}
