package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/infrastructure/logger"
)

// Keys used to carry store identity through gin.Context
const (
	StoreIDKey     = "store_id"
	StoreHeaderKey = "X-Store-ID"
)

// StoreMiddlewareConfig holds configuration for store middleware
type StoreMiddlewareConfig struct {
	// SkipPaths are paths that don't require store context. Webhook ingestion
	// resolves its store from the delivery itself, not from a header.
	SkipPaths []string
	// Required determines if store context is mandatory
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultStoreConfig returns default store middleware configuration
func DefaultStoreConfig() StoreMiddlewareConfig {
	return StoreMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready", "/api/v1/system/health", "/api/v1/webhooks"},
		Required:  true,
		Logger:    nil,
	}
}

// StoreMiddleware extracts the store ID from the X-Store-ID header and puts
// it in the gin and request contexts
func StoreMiddleware() gin.HandlerFunc {
	return StoreMiddlewareWithConfig(DefaultStoreConfig())
}

// StoreMiddlewareWithConfig returns store middleware with custom configuration
func StoreMiddlewareWithConfig(cfg StoreMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		storeID := c.GetHeader(StoreHeaderKey)
		if storeID == "" {
			if cfg.Required {
				respondUnauthorized(c, "Store identification required")
				return
			}
			c.Next()
			return
		}

		if _, err := uuid.Parse(storeID); err != nil {
			respondUnauthorized(c, "Invalid store ID format")
			return
		}

		c.Set(StoreIDKey, storeID)

		// Propagate to the request context so service-layer logs carry it
		ctx := c.Request.Context()
		log := cfg.Logger
		if log == nil {
			log = logger.FromContext(ctx)
		}
		ctx, _ = logger.WithStoreID(ctx, log, storeID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetStoreID retrieves the store ID from gin.Context
func GetStoreID(c *gin.Context) string {
	if storeID, exists := c.Get(StoreIDKey); exists {
		if sid, ok := storeID.(string); ok {
			return sid
		}
	}
	return ""
}

// GetStoreUUID retrieves the store ID as UUID from gin.Context
func GetStoreUUID(c *gin.Context) (uuid.UUID, error) {
	storeID := GetStoreID(c)
	if storeID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(storeID)
}

// OptionalStoreMiddleware creates middleware that doesn't require a store
func OptionalStoreMiddleware() gin.HandlerFunc {
	cfg := DefaultStoreConfig()
	cfg.Required = false
	return StoreMiddlewareWithConfig(cfg)
}
