package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/shared"
)

var (
	ErrAllocationNotFound   = errors.New("allocation: allocation not found")
	ErrInvalidQuantity      = errors.New("allocation: quantity must be positive")
	ErrInvalidBuffer        = errors.New("allocation: buffer percent must be in [0,100)")
	ErrInvalidPhysicalStock = errors.New("allocation: physical stock cannot be negative")
	ErrChannelNotAllocated  = errors.New("allocation: channel has no allocation line")
	ErrOrderRefRequired     = errors.New("allocation: order reference is required")
	ErrPlanExceedsStock     = errors.New("allocation: plan exceeds allocatable stock")
	ErrPlanBelowReserved    = errors.New("allocation: plan allocates less than already reserved")
)

// ReservationStatus tracks a reservation's lifecycle
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// Line is the allocation state for one channel
type Line struct {
	ChannelID uuid.UUID       `json:"channel_id"`
	Allocated decimal.Decimal `json:"allocated"`
	Reserved  decimal.Decimal `json:"reserved"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Available returns the quantity still reservable on this line
func (l Line) Available() decimal.Decimal {
	return l.Allocated.Sub(l.Reserved)
}

// Reservation is a short-lived hold against a channel's allocation,
// keyed by the caller's order reference for idempotency
type Reservation struct {
	OrderRef  string            `json:"order_ref"`
	ChannelID uuid.UUID         `json:"channel_id"`
	Quantity  decimal.Decimal   `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// InventoryAllocation is the per-product allocation aggregate. It is the
// only writer of allocated and reserved quantities; concurrent mutations
// are serialized through the repository's compare-and-swap on Version.
type InventoryAllocation struct {
	shared.StoreAggregateRoot

	ProductID     uuid.UUID
	PhysicalStock decimal.Decimal
	// BufferPercent of physical stock is held back unallocated to absorb
	// cross-channel latency
	BufferPercent decimal.Decimal
	Lines         []Line
	Reservations  []Reservation
}

// NewInventoryAllocation creates an empty allocation for a product
func NewInventoryAllocation(storeID, productID uuid.UUID, physicalStock, bufferPercent decimal.Decimal) (*InventoryAllocation, error) {
	if physicalStock.IsNegative() {
		return nil, ErrInvalidPhysicalStock
	}
	if bufferPercent.IsNegative() || bufferPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, ErrInvalidBuffer
	}

	return &InventoryAllocation{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		ProductID:          productID,
		PhysicalStock:      physicalStock,
		BufferPercent:      bufferPercent,
		Lines:              make([]Line, 0),
		Reservations:       make([]Reservation, 0),
	}, nil
}

// Allocatable returns the stock available for distribution after the buffer,
// rounded down to whole units
func (a *InventoryAllocation) Allocatable() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return a.PhysicalStock.Mul(hundred.Sub(a.BufferPercent)).Div(hundred).RoundDown(0)
}

// TotalAllocated sums allocated quantities across all channels
func (a *InventoryAllocation) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, l := range a.Lines {
		total = total.Add(l.Allocated)
	}
	return total
}

// SetPhysicalStock updates the physical pool. Lowering it below the current
// total allocation is rejected; callers must reallocate first.
func (a *InventoryAllocation) SetPhysicalStock(stock decimal.Decimal) error {
	if stock.IsNegative() {
		return ErrInvalidPhysicalStock
	}
	a.PhysicalStock = stock
	if a.TotalAllocated().GreaterThan(a.Allocatable()) {
		return ErrPlanExceedsStock
	}
	a.Touch()
	return nil
}

// line returns the channel's line index, or -1
func (a *InventoryAllocation) line(channelID uuid.UUID) int {
	for i := range a.Lines {
		if a.Lines[i].ChannelID == channelID {
			return i
		}
	}
	return -1
}

// reservation returns the reservation index for an order ref, or -1
func (a *InventoryAllocation) reservation(orderRef string) int {
	for i := range a.Reservations {
		if a.Reservations[i].OrderRef == orderRef {
			return i
		}
	}
	return -1
}

// ApplyPlan replaces the per-channel allocation with a computed plan.
// The plan must not exceed the allocatable stock, and no channel may be
// allocated less than it currently has reserved.
func (a *InventoryAllocation) ApplyPlan(plan Plan) error {
	total := decimal.Zero
	for _, p := range plan.Lines {
		total = total.Add(p.Quantity)
	}
	if total.GreaterThan(a.Allocatable()) {
		return fmt.Errorf("%w: plan total %s, allocatable %s", ErrPlanExceedsStock, total.String(), a.Allocatable().String())
	}

	now := time.Now()
	newLines := make([]Line, 0, len(plan.Lines))
	for _, p := range plan.Lines {
		reserved := decimal.Zero
		if i := a.line(p.ChannelID); i >= 0 {
			reserved = a.Lines[i].Reserved
		}
		if p.Quantity.LessThan(reserved) {
			return fmt.Errorf("%w: channel %s reserved %s, planned %s",
				ErrPlanBelowReserved, p.ChannelID, reserved.String(), p.Quantity.String())
		}
		newLines = append(newLines, Line{
			ChannelID: p.ChannelID,
			Allocated: p.Quantity,
			Reserved:  reserved,
			UpdatedAt: now,
		})
	}

	// Channels dropped from the plan must hold no reservations
	for _, l := range a.Lines {
		if plan.lineFor(l.ChannelID) == nil && l.Reserved.IsPositive() {
			return fmt.Errorf("%w: channel %s holds reservations but is absent from plan",
				ErrPlanBelowReserved, l.ChannelID)
		}
	}

	a.Lines = newLines
	a.UpdatedAt = now
	a.AddDomainEvent(NewAllocationChangedEvent(a, plan.Strategy))
	return nil
}

// Reserve places a hold of quantity against the channel's allocation.
// Idempotent per orderRef: repeating a reservation with the same reference
// returns the existing hold without double-counting.
func (a *InventoryAllocation) Reserve(channelID uuid.UUID, quantity decimal.Decimal, orderRef string) (*Reservation, error) {
	if orderRef == "" {
		return nil, ErrOrderRefRequired
	}
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	if i := a.reservation(orderRef); i >= 0 {
		existing := a.Reservations[i]
		if existing.Status == ReservationActive {
			return &existing, nil
		}
		// A released reservation under the same ref is a replay of an old
		// order; treat as already settled rather than re-holding stock.
		return &existing, nil
	}

	li := a.line(channelID)
	if li < 0 {
		return nil, ErrChannelNotAllocated
	}
	if quantity.GreaterThan(a.Lines[li].Available()) {
		return nil, shared.ErrInsufficientStock
	}

	now := time.Now()
	a.Lines[li].Reserved = a.Lines[li].Reserved.Add(quantity)
	a.Lines[li].UpdatedAt = now

	res := Reservation{
		OrderRef:  orderRef,
		ChannelID: channelID,
		Quantity:  quantity,
		Status:    ReservationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.Reservations = append(a.Reservations, res)
	a.UpdatedAt = now
	a.AddDomainEvent(NewStockReservedEvent(a, &res))
	return &res, nil
}

// Release returns a reservation's quantity to the channel's available pool.
// Idempotent: releasing an unknown or already-released reference is a no-op.
func (a *InventoryAllocation) Release(orderRef string) error {
	i := a.reservation(orderRef)
	if i < 0 || a.Reservations[i].Status != ReservationActive {
		return nil
	}

	now := time.Now()
	res := &a.Reservations[i]
	if li := a.line(res.ChannelID); li >= 0 {
		a.Lines[li].Reserved = a.Lines[li].Reserved.Sub(res.Quantity)
		a.Lines[li].UpdatedAt = now
	}
	res.Status = ReservationReleased
	res.UpdatedAt = now
	a.UpdatedAt = now
	a.AddDomainEvent(NewStockReleasedEvent(a, res))
	return nil
}

// Summary is a read-only snapshot across all channels for display and audit
type Summary struct {
	ProductID      uuid.UUID       `json:"product_id"`
	PhysicalStock  decimal.Decimal `json:"physical_stock"`
	BufferPercent  decimal.Decimal `json:"buffer_percent"`
	Allocatable    decimal.Decimal `json:"allocatable"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	TotalReserved  decimal.Decimal `json:"total_reserved"`
	Lines          []Line          `json:"lines"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Snapshot returns the allocation summary
func (a *InventoryAllocation) Snapshot() Summary {
	totalReserved := decimal.Zero
	lines := make([]Line, len(a.Lines))
	copy(lines, a.Lines)
	for _, l := range a.Lines {
		totalReserved = totalReserved.Add(l.Reserved)
	}
	return Summary{
		ProductID:      a.ProductID,
		PhysicalStock:  a.PhysicalStock,
		BufferPercent:  a.BufferPercent,
		Allocatable:    a.Allocatable(),
		TotalAllocated: a.TotalAllocated(),
		TotalReserved:  totalReserved,
		Lines:          lines,
		UpdatedAt:      a.UpdatedAt,
	}
}
