package conflict

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/shared"
)

var (
	ErrConflictNotFound     = errors.New("conflict: conflict not found")
	ErrConflictClosed       = errors.New("conflict: conflict is already closed")
	ErrNoObservations       = errors.New("conflict: at least one observation is required")
	ErrUnknownStrategy      = errors.New("conflict: unknown resolution strategy")
	ErrNoResolutionRecorded = errors.New("conflict: no resolution has been recorded")
)

// Type classifies the disagreement
type Type string

const (
	TypeStockMismatch Type = "STOCK_MISMATCH"
	TypePriceMismatch Type = "PRICE_MISMATCH"
	TypeOverselling   Type = "OVERSELLING"
	TypeDuplicateSale Type = "DUPLICATE_SALE"
)

// IsValid returns true if the conflict type is known
func (t Type) IsValid() bool {
	switch t {
	case TypeStockMismatch, TypePriceMismatch, TypeOverselling, TypeDuplicateSale:
		return true
	default:
		return false
	}
}

// Status is the resolution lifecycle state
type Status string

const (
	// StatusPending means the conflict is detected and awaiting resolution
	StatusPending Status = "PENDING"
	// StatusResolving means a resolution value is recorded and the push back
	// to the channels is in flight
	StatusResolving Status = "RESOLVING"
	// StatusResolved means the resolved value reached every channel, or a
	// partial push was explicitly accepted
	StatusResolved Status = "RESOLVED"
	// StatusManualReview means automatic resolution declined to pick a value
	StatusManualReview Status = "MANUAL_REVIEW"
)

// Severity scales with the magnitude of the discrepancy
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Observation is one channel's reported quantity for the product
type Observation struct {
	ChannelID   uuid.UUID       `json:"channel_id"`
	ChannelType string          `json:"channel_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReportedAt  time.Time       `json:"reported_at"`
	// Reliability is the channel's score in [0,1] at observation time,
	// consumed by the intelligent_merge strategy
	Reliability decimal.Decimal `json:"reliability"`
}

// SyncConflict is a detected disagreement between channels about one
// product's quantity. Once resolved it is immutable; history is append-only
// for audit.
type SyncConflict struct {
	shared.StoreAggregateRoot

	ProductID    uuid.UUID
	Type         Type
	Severity     Severity
	Discrepancy  decimal.Decimal
	Observations []Observation

	Status             Status
	ResolutionStrategy Strategy
	ResolvedValue      *decimal.Decimal
	ResolutionReason   string
	Confidence         *decimal.Decimal
	ResolvedPartially  bool
	ResolvedAt         *time.Time
}

// NewSyncConflict creates a detected conflict in pending state
func NewSyncConflict(storeID, productID uuid.UUID, conflictType Type, observations []Observation) (*SyncConflict, error) {
	if len(observations) == 0 {
		return nil, ErrNoObservations
	}

	discrepancy := maxQuantity(observations).Sub(minQuantity(observations))

	c := &SyncConflict{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		ProductID:          productID,
		Type:               conflictType,
		Severity:           severityFor(discrepancy),
		Discrepancy:        discrepancy,
		Observations:       observations,
		Status:             StatusPending,
	}
	c.AddDomainEvent(NewConflictDetectedEvent(c))
	return c, nil
}

// IsClosed returns true once the conflict is immutable
func (c *SyncConflict) IsClosed() bool {
	return c.Status == StatusResolved
}

// RecordResolution stores the strategy outcome. Manual-review outcomes close
// nothing; they park the conflict for an operator. Value-bearing outcomes
// move the conflict to RESOLVING until the push back to channels settles.
func (c *SyncConflict) RecordResolution(res *Resolution) error {
	if c.IsClosed() {
		return ErrConflictClosed
	}

	c.ResolutionStrategy = res.Strategy
	c.ResolutionReason = res.Reason
	c.Touch()

	if res.RequiresManualIntervention {
		c.Status = StatusManualReview
		c.AddDomainEvent(NewConflictEscalatedEvent(c))
		return nil
	}

	value := res.Value.Copy()
	c.ResolvedValue = &value
	if res.Confidence != nil {
		conf := res.Confidence.Copy()
		c.Confidence = &conf
	}
	c.Status = StatusResolving
	return nil
}

// Close finalizes the conflict after the resolved value was pushed to every
// channel, or after an operator accepted a partial push.
func (c *SyncConflict) Close(partial bool) error {
	if c.IsClosed() {
		return ErrConflictClosed
	}
	if c.Status != StatusResolving {
		return ErrNoResolutionRecorded
	}

	now := time.Now()
	c.Status = StatusResolved
	c.ResolvedPartially = partial
	c.ResolvedAt = &now
	c.UpdatedAt = now
	c.AddDomainEvent(NewConflictResolvedEvent(c))
	return nil
}

// severityFor maps discrepancy magnitude to a severity band
func severityFor(discrepancy decimal.Decimal) Severity {
	switch {
	case discrepancy.LessThan(decimal.NewFromInt(5)):
		return SeverityLow
	case discrepancy.LessThan(decimal.NewFromInt(20)):
		return SeverityMedium
	case discrepancy.LessThan(decimal.NewFromInt(50)):
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func maxQuantity(observations []Observation) decimal.Decimal {
	maxQty := observations[0].Quantity
	for _, o := range observations[1:] {
		if o.Quantity.GreaterThan(maxQty) {
			maxQty = o.Quantity
		}
	}
	return maxQty
}

func minQuantity(observations []Observation) decimal.Decimal {
	minQty := observations[0].Quantity
	for _, o := range observations[1:] {
		if o.Quantity.LessThan(minQty) {
			minQty = o.Quantity
		}
	}
	return minQty
}
