package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/allocation"
)

// ChannelSignal carries the caller-supplied per-channel inputs a strategy
// may consume. SalesHistory is only read by demand_based.
type ChannelSignal struct {
	ChannelID     uuid.UUID               `json:"channel_id" binding:"required"`
	SalesVelocity decimal.Decimal         `json:"sales_velocity"`
	Cap           decimal.Decimal         `json:"cap"`
	Weight        decimal.Decimal         `json:"weight"`
	SalesHistory  []allocation.SalesPoint `json:"sales_history"`
}

// RebalanceRequest asks for a fresh allocation plan for one product
type RebalanceRequest struct {
	Strategy string `json:"strategy" binding:"required"`
	// PhysicalStock, when set, updates the physical pool before planning
	PhysicalStock *decimal.Decimal `json:"physical_stock"`
	// BufferPercent, when set, overrides the held-back share before planning
	BufferPercent *decimal.Decimal `json:"buffer_percent"`
	// Channels defaults to the store's active channels when empty
	Channels []ChannelSignal `json:"channels"`
}

// ReserveRequest places a hold against a channel's allocation
type ReserveRequest struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	ChannelID uuid.UUID       `json:"channel_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	OrderRef  string          `json:"order_ref" binding:"required"`
}

// ReservationResponse describes a reservation after Reserve
type ReservationResponse struct {
	OrderRef  string          `json:"order_ref"`
	ChannelID uuid.UUID       `json:"channel_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// AllocationResponse is the allocation snapshot returned by the API
type AllocationResponse struct {
	ProductID      uuid.UUID         `json:"product_id"`
	PhysicalStock  decimal.Decimal   `json:"physical_stock"`
	BufferPercent  decimal.Decimal   `json:"buffer_percent"`
	Allocatable    decimal.Decimal   `json:"allocatable"`
	TotalAllocated decimal.Decimal   `json:"total_allocated"`
	TotalReserved  decimal.Decimal   `json:"total_reserved"`
	Lines          []allocation.Line `json:"lines"`
	Version        int               `json:"version"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toAllocationResponse(a *allocation.InventoryAllocation) *AllocationResponse {
	snapshot := a.Snapshot()
	return &AllocationResponse{
		ProductID:      snapshot.ProductID,
		PhysicalStock:  snapshot.PhysicalStock,
		BufferPercent:  snapshot.BufferPercent,
		Allocatable:    snapshot.Allocatable,
		TotalAllocated: snapshot.TotalAllocated,
		TotalReserved:  snapshot.TotalReserved,
		Lines:          snapshot.Lines,
		Version:        a.Version,
		UpdatedAt:      snapshot.UpdatedAt,
	}
}

func toReservationResponse(productID uuid.UUID, r *allocation.Reservation) *ReservationResponse {
	return &ReservationResponse{
		OrderRef:  r.OrderRef,
		ChannelID: r.ChannelID,
		ProductID: productID,
		Quantity:  r.Quantity,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
	}
}
