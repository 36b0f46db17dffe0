package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records request counts and latency per route.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "rigmarket"
	}
	meter := provider.Meter(name + "/http")

	requests, err := meter.Int64Counter("rigmarket_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("rigmarket_http_request_duration_seconds",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware records one sample per request. A nil receiver is a no-op.
func (h *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		attrs := FilterAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		h.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		h.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}
