package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
)

// ChannelModel is the persistence model for the Channel aggregate
type ChannelModel struct {
	StoreAggregateModel

	Name          string       `gorm:"type:varchar(100);not null"`
	Type          channel.Type `gorm:"type:varchar(20);not null;index:idx_channels_store_type,priority:2"`
	IsActive      bool         `gorm:"not null;default:true"`
	Priority      int          `gorm:"not null;default:0"`
	CredentialRef string       `gorm:"type:varchar(255);not null"`

	RateLimitQPS   float64 `gorm:"not null;default:2"`
	RateLimitBurst int     `gorm:"not null;default:4"`

	ReliabilityScore decimal.Decimal `gorm:"type:decimal(5,4);not null;default:1"`

	Breaker         channel.BreakerState `gorm:"type:varchar(10);not null;default:'CLOSED'"`
	BreakerOpenedAt *time.Time

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}

// TableName returns the table name for GORM
func (ChannelModel) TableName() string {
	return "channels"
}

// ToDomain converts the persistence model to a domain Channel aggregate
func (m *ChannelModel) ToDomain() *channel.Channel {
	return &channel.Channel{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		Name:               m.Name,
		Type:               m.Type,
		IsActive:           m.IsActive,
		Priority:           m.Priority,
		CredentialRef:      m.CredentialRef,
		RateLimitQPS:       m.RateLimitQPS,
		RateLimitBurst:     m.RateLimitBurst,
		ReliabilityScore:   m.ReliabilityScore,
		Breaker:            m.Breaker,
		BreakerOpenedAt:    m.BreakerOpenedAt,
		LastSuccessAt:      m.LastSuccessAt,
		LastFailureAt:      m.LastFailureAt,
	}
}

// FromDomain populates the persistence model from a domain Channel aggregate
func (m *ChannelModel) FromDomain(ch *channel.Channel) {
	m.FromDomainStoreAggregateRoot(ch.StoreAggregateRoot)
	m.Name = ch.Name
	m.Type = ch.Type
	m.IsActive = ch.IsActive
	m.Priority = ch.Priority
	m.CredentialRef = ch.CredentialRef
	m.RateLimitQPS = ch.RateLimitQPS
	m.RateLimitBurst = ch.RateLimitBurst
	m.ReliabilityScore = ch.ReliabilityScore
	m.Breaker = ch.Breaker
	m.BreakerOpenedAt = ch.BreakerOpenedAt
	m.LastSuccessAt = ch.LastSuccessAt
	m.LastFailureAt = ch.LastFailureAt
}

// ChannelModelFromDomain creates a new persistence model from a domain Channel
func ChannelModelFromDomain(ch *channel.Channel) *ChannelModel {
	m := &ChannelModel{}
	m.FromDomain(ch)
	return m
}

// ProductMappingModel is the persistence model for the ProductMapping aggregate
type ProductMappingModel struct {
	StoreAggregateModel

	ChannelID uuid.UUID `gorm:"type:uuid;not null;index:idx_product_mappings_channel_product,priority:1;uniqueIndex:uq_product_mappings_native,priority:1"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_product_mappings_channel_product,priority:2"`

	NativeProductRef string `gorm:"type:varchar(100);not null;uniqueIndex:uq_product_mappings_native,priority:2"`
	NativeVariantRef string `gorm:"type:varchar(100)"`

	IsActive     bool `gorm:"not null;default:true"`
	LastSyncedAt *time.Time
}

// TableName returns the table name for GORM
func (ProductMappingModel) TableName() string {
	return "product_mappings"
}

// ToDomain converts the persistence model to a domain ProductMapping
func (m *ProductMappingModel) ToDomain() *channel.ProductMapping {
	return &channel.ProductMapping{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		ChannelID:          m.ChannelID,
		ProductID:          m.ProductID,
		NativeProductRef:   m.NativeProductRef,
		NativeVariantRef:   m.NativeVariantRef,
		IsActive:           m.IsActive,
		LastSyncedAt:       m.LastSyncedAt,
	}
}

// FromDomain populates the persistence model from a domain ProductMapping
func (m *ProductMappingModel) FromDomain(pm *channel.ProductMapping) {
	m.FromDomainStoreAggregateRoot(pm.StoreAggregateRoot)
	m.ChannelID = pm.ChannelID
	m.ProductID = pm.ProductID
	m.NativeProductRef = pm.NativeProductRef
	m.NativeVariantRef = pm.NativeVariantRef
	m.IsActive = pm.IsActive
	m.LastSyncedAt = pm.LastSyncedAt
}

// ProductMappingModelFromDomain creates a new persistence model from a domain ProductMapping
func ProductMappingModelFromDomain(pm *channel.ProductMapping) *ProductMappingModel {
	m := &ProductMappingModel{}
	m.FromDomain(pm)
	return m
}
