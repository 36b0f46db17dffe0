package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type kindError struct{}

func (kindError) Error() string     { return "card declined for jane@example.com" }
func (kindError) ErrorKind() string { return "gateway_error" }

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/checkout-sessions"),
		attribute.String("payer_email", "jane@example.com"),
		attribute.String("client_secret", "pi_secret"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsMessage(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	err := SafeError(fmt.Errorf("wrap: %w", kindError{}))
	require.Error(t, err)
	assert.Equal(t, "gateway_error", err.Error())

	plain := SafeError(errors.New("secret detail"))
	assert.NotContains(t, plain.Error(), "secret detail")
}

func TestGinMiddlewareSetsCorrelationHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, err := NewProvider(nil, Config{Enabled: false, ServiceName: "rigmarket"}, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "corr-1", w.Header().Get("X-Correlation-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Correlation-Id"), 26)
}
