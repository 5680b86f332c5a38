package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	ChatUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_chat_updates_total",
		Help: "Chat update requests by outcome",
	}, []string{"outcome"})
	MessagesUpsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_upserted_total",
		Help: "Messages written by chat updates",
	})
	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_stream_subscribers",
		Help: "Current number of open chat event streams",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_rate_limited_total",
		Help: "Requests rejected by the per-owner rate limiter",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChatUpdatesTotal,
		MessagesUpsertedTotal,
		StreamSubscribers,
		RateLimitedTotal,
	)
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// ObserveChatUpdate counts one update request by outcome label.
func ObserveChatUpdate(outcome string, messagesWritten int) {
	ChatUpdatesTotal.WithLabelValues(outcome).Inc()
	if messagesWritten > 0 {
		MessagesUpsertedTotal.Add(float64(messagesWritten))
	}
}
