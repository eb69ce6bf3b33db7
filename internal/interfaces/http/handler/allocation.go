package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appallocation "github.com/channelsync/backend/internal/application/allocation"
)

// AllocationHandler manages per-product channel allocations and reservations
type AllocationHandler struct {
	BaseHandler
	allocationService *appallocation.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocationService *appallocation.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService}
}

// RegisterRoutes registers allocation and reservation routes
func (h *AllocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	allocations := rg.Group("/allocations")
	allocations.GET("/:productID", h.Get)
	allocations.POST("/:productID", h.Rebalance)

	reservations := rg.Group("/reservations")
	reservations.POST("", h.Reserve)
	reservations.DELETE("/:orderRef", h.Release)
}

// Get returns the product's current allocation plan and reservations
func (h *AllocationHandler) Get(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	resp, err := h.allocationService.GetSummary(c.Request.Context(), storeID, productID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}

// Rebalance recomputes the product's allocation plan with the requested
// strategy
func (h *AllocationHandler) Rebalance(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	var req appallocation.RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.allocationService.Rebalance(c.Request.Context(), storeID, productID, &req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, resp)
}

// Reserve places an idempotent reservation against a channel's allocation
func (h *AllocationHandler) Reserve(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	var req appallocation.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.allocationService.Reserve(c.Request.Context(), storeID, &req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, resp)
}

// Release returns a reservation's stock to its channel. Releasing an
// unknown order reference is a no-op, matching the domain's idempotency.
func (h *AllocationHandler) Release(c *gin.Context) {
	storeID, err := getStoreID(c)
	if err != nil {
		h.Unauthorized(c, "Store identification required")
		return
	}

	orderRef := c.Param("orderRef")
	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		h.BadRequest(c, "A valid product_id query parameter is required")
		return
	}

	if err := h.allocationService.Release(c.Request.Context(), storeID, productID, orderRef); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}
