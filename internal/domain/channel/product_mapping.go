package channel

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/shared"
)

var (
	ErrMappingNotFound         = errors.New("channel: product mapping not found")
	ErrMappingAlreadyExists    = errors.New("channel: product mapping already exists")
	ErrMappingInvalidProduct   = errors.New("channel: invalid product ID for mapping")
	ErrMappingInvalidChannel   = errors.New("channel: invalid channel ID for mapping")
	ErrMappingMissingReference = errors.New("channel: native product reference is required")
	ErrMappingInactive         = errors.New("channel: product mapping is inactive")
)

// ProductMapping links a local product to its channel-native identifier.
// One product maps to at most one reference per channel; the pair
// (store, channel, product) is unique.
type ProductMapping struct {
	shared.StoreAggregateRoot

	ChannelID uuid.UUID
	ProductID uuid.UUID

	// NativeProductRef is the channel-side product/variant identifier used
	// in connector calls
	NativeProductRef string
	// NativeVariantRef is the optional channel-side variant identifier
	NativeVariantRef string

	IsActive     bool
	LastSyncedAt *time.Time
}

// NewProductMapping creates a mapping during initial catalog sync
func NewProductMapping(storeID, channelID, productID uuid.UUID, nativeProductRef string) (*ProductMapping, error) {
	if channelID == uuid.Nil {
		return nil, ErrMappingInvalidChannel
	}
	if productID == uuid.Nil {
		return nil, ErrMappingInvalidProduct
	}
	if nativeProductRef == "" {
		return nil, ErrMappingMissingReference
	}

	return &ProductMapping{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		ChannelID:          channelID,
		ProductID:          productID,
		NativeProductRef:   nativeProductRef,
		IsActive:           true,
	}, nil
}

// Invalidate marks the mapping unusable, e.g. after the channel-side product
// was deleted. Sync and push paths skip invalidated mappings.
func (m *ProductMapping) Invalidate() {
	m.IsActive = false
	m.Touch()
}

// MarkSynced records a successful inventory push/pull through this mapping
func (m *ProductMapping) MarkSynced(at time.Time) {
	m.LastSyncedAt = &at
	m.Touch()
}
