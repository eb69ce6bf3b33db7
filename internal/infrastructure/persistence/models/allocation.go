package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/allocation"
)

// InventoryAllocationModel is the persistence model for the
// InventoryAllocation aggregate. Lines and reservations are value objects
// owned entirely by the aggregate, stored as JSONB documents.
type InventoryAllocationModel struct {
	StoreAggregateModel

	ProductID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_allocations_store_product,priority:2"`
	PhysicalStock decimal.Decimal `gorm:"type:decimal(15,4);not null;default:0"`
	BufferPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`

	LinesJSON        string `gorm:"type:jsonb;column:lines"`
	ReservationsJSON string `gorm:"type:jsonb;column:reservations"`
}

// TableName returns the table name for GORM
func (InventoryAllocationModel) TableName() string {
	return "inventory_allocations"
}

// ToDomain converts the persistence model to a domain InventoryAllocation
func (m *InventoryAllocationModel) ToDomain() *allocation.InventoryAllocation {
	a := &allocation.InventoryAllocation{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		ProductID:          m.ProductID,
		PhysicalStock:      m.PhysicalStock,
		BufferPercent:      m.BufferPercent,
		Lines:              make([]allocation.Line, 0),
		Reservations:       make([]allocation.Reservation, 0),
	}

	if m.LinesJSON != "" {
		var lines []allocation.Line
		if err := json.Unmarshal([]byte(m.LinesJSON), &lines); err == nil {
			a.Lines = lines
		}
	}
	if m.ReservationsJSON != "" {
		var reservations []allocation.Reservation
		if err := json.Unmarshal([]byte(m.ReservationsJSON), &reservations); err == nil {
			a.Reservations = reservations
		}
	}
	return a
}

// FromDomain populates the persistence model from a domain InventoryAllocation
func (m *InventoryAllocationModel) FromDomain(a *allocation.InventoryAllocation) {
	m.FromDomainStoreAggregateRoot(a.StoreAggregateRoot)
	m.ProductID = a.ProductID
	m.PhysicalStock = a.PhysicalStock
	m.BufferPercent = a.BufferPercent

	if jsonBytes, err := json.Marshal(a.Lines); err == nil {
		m.LinesJSON = string(jsonBytes)
	} else {
		m.LinesJSON = "[]"
	}
	if jsonBytes, err := json.Marshal(a.Reservations); err == nil {
		m.ReservationsJSON = string(jsonBytes)
	} else {
		m.ReservationsJSON = "[]"
	}
}

// InventoryAllocationModelFromDomain creates a new persistence model from a
// domain InventoryAllocation
func InventoryAllocationModelFromDomain(a *allocation.InventoryAllocation) *InventoryAllocationModel {
	m := &InventoryAllocationModel{}
	m.FromDomain(a)
	return m
}
