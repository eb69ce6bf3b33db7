package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appconflict "github.com/channelsync/backend/internal/application/conflict"
)

// ConflictHandler exposes detected conflicts and their resolution
type ConflictHandler struct {
	BaseHandler
	conflictService *appconflict.ConflictService
}

// NewConflictHandler creates a new ConflictHandler
func NewConflictHandler(conflictService *appconflict.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflictService: conflictService}
}

// RegisterRoutes registers conflict routes
func (h *ConflictHandler) RegisterRoutes(rg *gin.RouterGroup) {
	conflicts := rg.Group("/conflicts")
	conflicts.GET("", h.List)
	conflicts.GET("/patterns", h.Patterns)
	conflicts.GET("/:id", h.Get)
	conflicts.POST("/:id/resolve", h.Resolve)
	conflicts.POST("/:id/accept-partial", h.AcceptPartial)
}

// List returns the store's conflicts, filterable by status, type and product
func (h *ConflictHandler) List(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	var filter appconflict.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.conflictService.List(c.Request.Context(), storeID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.SuccessWithMeta(c, resp.Items, resp.Total, resp.Page, resp.PageSize)
}

// Get returns one conflict with its observations and resolution
func (h *ConflictHandler) Get(c *gin.Context) {
	if _, err := getStoreID(c); err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	resp, err := h.conflictService.Get(c.Request.Context(), conflictID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}

// Resolve applies a resolution strategy to a pending conflict
func (h *ConflictHandler) Resolve(c *gin.Context) {
	if _, err := getStoreID(c); err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	var req appconflict.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.conflictService.Resolve(c.Request.Context(), conflictID, &req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}

// AcceptPartial closes a conflict whose resolved value could not reach
// every channel
func (h *ConflictHandler) AcceptPartial(c *gin.Context) {
	if _, err := getStoreID(c); err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	resp, err := h.conflictService.AcceptPartial(c.Request.Context(), conflictID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}

// Patterns summarizes recurring conflicts over a trailing period
func (h *ConflictHandler) Patterns(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	periodDays := 0
	if raw := c.Query("period_days"); raw != "" {
		periodDays, err = strconv.Atoi(raw)
		if err != nil || periodDays < 0 {
			h.BadRequest(c, "period_days must be a non-negative integer")
			return
		}
	}

	patterns, err := h.conflictService.AnalyzePatterns(c.Request.Context(), storeID, periodDays)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, patterns)
}
