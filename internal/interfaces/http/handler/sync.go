package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/channelsync/backend/internal/application/sync"
)

// SyncHandler triggers reconciliation runs and exposes their progress
type SyncHandler struct {
	BaseHandler
	syncService *appsync.SyncService
	monitor     *appsync.Monitor
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *appsync.SyncService, monitor *appsync.Monitor) *SyncHandler {
	return &SyncHandler{syncService: syncService, monitor: monitor}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	sync.POST("/all", h.TriggerAll)
	sync.POST("/channels/:channelID", h.TriggerChannel)
	sync.GET("/status", h.Status)
	sync.POST("/jobs/:jobID/requeue", h.RequeueJob)
}

// TriggerAll enqueues a reconciliation run across every active channel
func (h *SyncHandler) TriggerAll(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	resp, err := h.syncService.SyncAllChannels(c.Request.Context(), storeID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// TriggerChannel enqueues a reconciliation run for one channel
func (h *SyncHandler) TriggerChannel(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	channelID, err := uuid.Parse(c.Param("channelID"))
	if err != nil {
		h.BadRequest(c, "Invalid channel ID format")
		return
	}

	resp, err := h.syncService.SyncSingleChannel(c.Request.Context(), storeID, channelID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// Status reports every channel's sync state, breaker and reliability
func (h *SyncHandler) Status(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	statuses, err := h.monitor.ChannelStatuses(c.Request.Context(), storeID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, statuses)
}

// RequeueJob gives a dead-lettered job a fresh retry budget
func (h *SyncHandler) RequeueJob(c *gin.Context) {
	if _, err := getStoreID(c); err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	resp, err := h.syncService.RequeueDeadJob(c.Request.Context(), jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}
