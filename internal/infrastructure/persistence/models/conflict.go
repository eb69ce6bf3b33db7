package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/conflict"
)

// SyncConflictModel is the persistence model for the SyncConflict aggregate.
// Observations are immutable after detection and stored as a JSONB document.
type SyncConflictModel struct {
	StoreAggregateModel

	ProductID        uuid.UUID         `gorm:"type:uuid;not null;index:idx_conflicts_store_product,priority:2"`
	Type             conflict.Type     `gorm:"type:varchar(20);not null"`
	Severity         conflict.Severity `gorm:"type:varchar(10);not null"`
	Discrepancy      decimal.Decimal   `gorm:"type:decimal(15,4);not null;default:0"`
	ObservationsJSON string            `gorm:"type:jsonb;column:observations"`

	Status             conflict.Status   `gorm:"type:varchar(15);not null;index"`
	ResolutionStrategy conflict.Strategy `gorm:"type:varchar(30)"`
	ResolvedValue      *decimal.Decimal  `gorm:"type:decimal(15,4)"`
	ResolutionReason   string            `gorm:"type:text"`
	Confidence         *decimal.Decimal  `gorm:"type:decimal(5,4)"`
	ResolvedPartially  bool              `gorm:"not null;default:false"`
	ResolvedAt         *time.Time
}

// TableName returns the table name for GORM
func (SyncConflictModel) TableName() string {
	return "sync_conflicts"
}

// ToDomain converts the persistence model to a domain SyncConflict
func (m *SyncConflictModel) ToDomain() *conflict.SyncConflict {
	c := &conflict.SyncConflict{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		ProductID:          m.ProductID,
		Type:               m.Type,
		Severity:           m.Severity,
		Discrepancy:        m.Discrepancy,
		Observations:       make([]conflict.Observation, 0),
		Status:             m.Status,
		ResolutionStrategy: m.ResolutionStrategy,
		ResolvedValue:      m.ResolvedValue,
		ResolutionReason:   m.ResolutionReason,
		Confidence:         m.Confidence,
		ResolvedPartially:  m.ResolvedPartially,
		ResolvedAt:         m.ResolvedAt,
	}

	if m.ObservationsJSON != "" {
		var observations []conflict.Observation
		if err := json.Unmarshal([]byte(m.ObservationsJSON), &observations); err == nil {
			c.Observations = observations
		}
	}
	return c
}

// FromDomain populates the persistence model from a domain SyncConflict
func (m *SyncConflictModel) FromDomain(c *conflict.SyncConflict) {
	m.FromDomainStoreAggregateRoot(c.StoreAggregateRoot)
	m.ProductID = c.ProductID
	m.Type = c.Type
	m.Severity = c.Severity
	m.Discrepancy = c.Discrepancy
	m.Status = c.Status
	m.ResolutionStrategy = c.ResolutionStrategy
	m.ResolvedValue = c.ResolvedValue
	m.ResolutionReason = c.ResolutionReason
	m.Confidence = c.Confidence
	m.ResolvedPartially = c.ResolvedPartially
	m.ResolvedAt = c.ResolvedAt

	if jsonBytes, err := json.Marshal(c.Observations); err == nil {
		m.ObservationsJSON = string(jsonBytes)
	} else {
		m.ObservationsJSON = "[]"
	}
}

// SyncConflictModelFromDomain creates a new persistence model from a domain SyncConflict
func SyncConflictModelFromDomain(c *conflict.SyncConflict) *SyncConflictModel {
	m := &SyncConflictModel{}
	m.FromDomain(c)
	return m
}
