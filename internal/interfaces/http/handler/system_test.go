package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthWithoutDatabaseIsUnhealthy(t *testing.T) {
	engine := gin.New()
	h := NewSystemHandler(nil, nil, nil, nil)
	h.RegisterRoutes(engine.Group("/api/v1"))

	req := httptest.NewRequest("GET", "/api/v1/system/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, w.Body.String(), "not configured")
	// optional probes are omitted rather than reported as failing
	assert.NotContains(t, w.Body.String(), "redis")
	assert.NotContains(t, w.Body.String(), "forecast")
}

func TestQueueRequiresStore(t *testing.T) {
	engine := gin.New()
	h := NewSystemHandler(nil, nil, nil, nil)
	h.RegisterRoutes(engine.Group("/api/v1"))

	req := httptest.NewRequest("GET", "/api/v1/system/queue", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
