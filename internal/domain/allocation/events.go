package allocation

import (
	"github.com/channelsync/backend/internal/domain/shared"
)

// Event types emitted by the allocation context
const (
	EventAllocationChanged = "allocation.changed"
	EventStockReserved     = "allocation.stock_reserved"
	EventStockReleased     = "allocation.stock_released"
)

// AllocationChangedEvent is emitted after a plan is applied
type AllocationChangedEvent struct {
	shared.BaseDomainEvent
	ProductID      string `json:"product_id"`
	Strategy       string `json:"strategy"`
	Channels       int    `json:"channels"`
	TotalAllocated string `json:"total_allocated"`
}

// NewAllocationChangedEvent creates a plan-applied event
func NewAllocationChangedEvent(a *InventoryAllocation, strategy Strategy) *AllocationChangedEvent {
	return &AllocationChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventAllocationChanged, "InventoryAllocation", a.ID, a.StoreID),
		ProductID:       a.ProductID.String(),
		Strategy:        string(strategy),
		Channels:        len(a.Lines),
		TotalAllocated:  a.TotalAllocated().String(),
	}
}

// StockReservedEvent is emitted when a hold is placed
type StockReservedEvent struct {
	shared.BaseDomainEvent
	ProductID string `json:"product_id"`
	ChannelID string `json:"channel_id"`
	OrderRef  string `json:"order_ref"`
	Quantity  string `json:"quantity"`
}

// NewStockReservedEvent creates a reservation event
func NewStockReservedEvent(a *InventoryAllocation, r *Reservation) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockReserved, "InventoryAllocation", a.ID, a.StoreID),
		ProductID:       a.ProductID.String(),
		ChannelID:       r.ChannelID.String(),
		OrderRef:        r.OrderRef,
		Quantity:        r.Quantity.String(),
	}
}

// StockReleasedEvent is emitted when a hold is returned to the pool
type StockReleasedEvent struct {
	shared.BaseDomainEvent
	ProductID string `json:"product_id"`
	ChannelID string `json:"channel_id"`
	OrderRef  string `json:"order_ref"`
	Quantity  string `json:"quantity"`
}

// NewStockReleasedEvent creates a release event
func NewStockReleasedEvent(a *InventoryAllocation, r *Reservation) *StockReleasedEvent {
	return &StockReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockReleased, "InventoryAllocation", a.ID, a.StoreID),
		ProductID:       a.ProductID.String(),
		ChannelID:       r.ChannelID.String(),
		OrderRef:        r.OrderRef,
		Quantity:        r.Quantity.String(),
	}
}
