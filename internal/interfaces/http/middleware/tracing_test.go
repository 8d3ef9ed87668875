package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func tracedRouter(cfg TracingConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Tracing(cfg), SpanEnricher())
	r.GET("/api/v1/products/:product_id/inventory", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/api/v1/movements", func(c *gin.Context) {
		c.Status(http.StatusServiceUnavailable)
	})
	r.POST("/api/v1/allocations", func(c *gin.Context) {
		c.Status(http.StatusUnprocessableEntity)
	})
	return r
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	w := serve(tracedRouter(TracingConfig{Enabled: false}), http.MethodGet, "/api/v1/products/p-1/inventory", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_EnrichesServerSpan(t *testing.T) {
	sr := setupTestTracer(t)
	r := tracedRouter(TracingConfig{ServiceName: "stockledger", Enabled: true})

	serve(r, http.MethodGet, "/api/v1/products/beef-ribeye/inventory", map[string]string{RequestIDHeader: "req-77"})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Contains(t, span.Name(), "/api/v1/products/:product_id/inventory")

	v, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-77", v.AsString())
	v, ok = spanAttr(span, "product_id")
	require.True(t, ok)
	assert.Equal(t, "beef-ribeye", v.AsString())
	v, ok = spanAttr(span, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), v.AsInt64())
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	sr := setupTestTracer(t)
	r := tracedRouter(TracingConfig{ServiceName: "stockledger", Enabled: true})

	serve(r, http.MethodPost, "/api/v1/movements", nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	_, hasProduct := spanAttr(spans[0], "product_id")
	assert.False(t, hasProduct)
}

func TestTracing_ClientErrorLeavesSpanUnset(t *testing.T) {
	sr := setupTestTracer(t)
	r := tracedRouter(TracingConfig{ServiceName: "stockledger", Enabled: true})

	serve(r, http.MethodPost, "/api/v1/allocations", nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestSpanEnricher_NoSpan(t *testing.T) {
	r := gin.New()
	r.Use(SpanEnricher())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := serve(r, http.MethodGet, "/test", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
