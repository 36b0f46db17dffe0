package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("rental_id", "456"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "provider" && attrs[1].Key != "provider" {
		t.Fatalf("expected provider to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "stripe", "payment.succeeded", "processed")
	m.RecordLedgerEntry(context.Background(), "rental_payment")
	m.RecordPersistenceFailure(context.Background(), "checkout.attach_session")
}

func TestRecordWebhookEventCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "rigmarket"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "stripe", "payment.succeeded", "processed")
	m.RecordWebhookEvent(ctx, "stripe", "payment.succeeded", "duplicate")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	total := sumCounter(rm, "rigmarket_webhook_events_total")
	if total != 2 {
		t.Fatalf("expected 2 webhook events, got %d", total)
	}
}

func TestHTTPMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	httpMetrics, err := NewHTTPMetrics(Config{}, provider)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	r := gin.New()
	r.Use(httpMetrics.GinMiddleware())
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/1", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := sumCounter(rm, "rigmarket_http_requests_total"); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func sumCounter(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
