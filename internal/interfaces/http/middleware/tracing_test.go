package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs a recording tracer provider for the test's lifetime
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func TestTracingDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "channelsync-test", Enabled: false}))
	router.GET("/api/v1/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended(), "disabled tracing must not open spans")
}

func TestTracingEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "channelsync-test", Enabled: true}))
	router.GET("/api/v1/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, sr.Ended())
	assert.NotNil(t, findSpan(sr.Ended(), "GET /api/v1/channels"))
}

func TestSpanEnricherAddsRequestAndStoreIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	storeID := "12345678-1234-1234-1234-123456789abc"

	router := gin.New()
	router.Use(RequestID())
	router.Use(Tracing(TracingConfig{ServiceName: "channelsync-test", Enabled: true}))
	router.Use(StoreMiddleware())
	router.Use(SpanEnricher())
	router.GET("/api/v1/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set(StoreHeaderKey, storeID)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	span := findSpan(sr.Ended(), "GET /api/v1/channels")
	require.NotNil(t, span, "HTTP span not found")

	var gotRequestID, gotStoreID string
	for _, attr := range span.Attributes() {
		switch string(attr.Key) {
		case "request_id":
			gotRequestID = attr.Value.AsString()
		case "store_id":
			gotStoreID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "req-42", gotRequestID)
	assert.Equal(t, storeID, gotStoreID)
}

func TestSpanEnricherWithoutSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(SpanEnricher())
	router.GET("/api/v1/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRequestIDFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "from-context")
		c.Next()
	})
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "from-context")
}

func TestGetRequestIDLongHeaderTruncated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"length": len(getRequestID(c))})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 300))
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"length":128`)
}
