// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraud_risk"

var (
	// AnalysesTotal counts completed order analyses by risk level.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total order analyses by resulting risk level.",
		},
		[]string{"risk_level"},
	)

	// BlockedTotal counts analyses that decided to block the order.
	BlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_total",
			Help:      "Total analyses that blocked the order.",
		},
	)

	// PartialTotal counts analyses that hit the deadline and returned the fail-safe result.
	PartialTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_analyses_total",
			Help:      "Total analyses that timed out and returned a partial result.",
		},
	)

	// AnalysisDuration observes end-to-end AnalyzeOrder latency.
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "AnalyzeOrder duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// DetectorFailuresTotal counts detector collaborator failures (fail-open events).
	DetectorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Detector collaborator failures by detector.",
		},
		[]string{"detector"},
	)

	// AlertsTotal counts created fraud alerts by severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Fraud alerts created by severity.",
		},
		[]string{"severity"},
	)

	// NotificationsTotal counts alert notification deliveries by result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notification deliveries by result.",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysesTotal,
		BlockedTotal,
		PartialTotal,
		AnalysisDuration,
		DetectorFailuresTotal,
		AlertsTotal,
		NotificationsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Middleware records request count and latency using the matched route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
