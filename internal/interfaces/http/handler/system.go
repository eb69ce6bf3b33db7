package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsync "github.com/channelsync/backend/internal/application/sync"
	"github.com/channelsync/backend/internal/infrastructure/forecast"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
)

// probeTimeout bounds each dependency health probe
const probeTimeout = 2 * time.Second

// SystemHandler exposes operational endpoints: dependency health and the
// job queue's composition
type SystemHandler struct {
	BaseHandler
	db       *gorm.DB
	redis    *redis.Client
	forecast *forecast.Client
	monitor  *appsync.Monitor
}

// NewSystemHandler creates a new SystemHandler. The redis and forecast
// probes are skipped when their clients are nil.
func NewSystemHandler(db *gorm.DB, redisClient *redis.Client, forecastClient *forecast.Client, monitor *appsync.Monitor) *SystemHandler {
	return &SystemHandler{
		db:       db,
		redis:    redisClient,
		forecast: forecastClient,
		monitor:  monitor,
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	system.GET("/health", h.Health)
	system.GET("/queue", h.Queue)
}

// HealthResponse reports each dependency's probe outcome
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health probes the database, cache and forecast sidecar. Only a database
// failure makes the service unhealthy; the others degrade gracefully.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	resp := &HealthResponse{Status: "healthy", Components: map[string]string{}}

	resp.Components["database"] = h.probeDatabase(ctx)
	if resp.Components["database"] != "ok" {
		resp.Status = "unhealthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp.Components["redis"] = err.Error()
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		} else {
			resp.Components["redis"] = "ok"
		}
	}

	if h.forecast != nil {
		if err := h.forecast.HealthCheck(ctx); err != nil {
			resp.Components["forecast"] = err.Error()
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		} else {
			resp.Components["forecast"] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.NewSuccessResponse(resp))
}

// Queue reports per-category job counts and recent dead-letter jobs
func (h *SystemHandler) Queue(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	report, err := h.monitor.QueueReport(c.Request.Context(), storeID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

func (h *SystemHandler) probeDatabase(ctx context.Context) string {
	if h.db == nil {
		return "not configured"
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err.Error()
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
