package conflict

import (
	"github.com/channelsync/backend/internal/domain/shared"
)

// Event types emitted by the conflict context
const (
	EventConflictDetected  = "conflict.detected"
	EventConflictResolved  = "conflict.resolved"
	EventConflictEscalated = "conflict.escalated"
)

// ConflictDetectedEvent is emitted when a new disagreement is recorded
type ConflictDetectedEvent struct {
	shared.BaseDomainEvent
	ProductID   string `json:"product_id"`
	ConflictType string `json:"conflict_type"`
	Severity    string `json:"severity"`
	Discrepancy string `json:"discrepancy"`
	Channels    int    `json:"channels"`
}

// NewConflictDetectedEvent creates a detection event for a conflict
func NewConflictDetectedEvent(c *SyncConflict) *ConflictDetectedEvent {
	return &ConflictDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventConflictDetected, "SyncConflict", c.ID, c.StoreID),
		ProductID:       c.ProductID.String(),
		ConflictType:    string(c.Type),
		Severity:        string(c.Severity),
		Discrepancy:     c.Discrepancy.String(),
		Channels:        len(c.Observations),
	}
}

// ConflictResolvedEvent is emitted when a conflict closes
type ConflictResolvedEvent struct {
	shared.BaseDomainEvent
	ProductID     string `json:"product_id"`
	Strategy      string `json:"strategy"`
	ResolvedValue string `json:"resolved_value"`
	Partial       bool   `json:"partial"`
}

// NewConflictResolvedEvent creates a resolution event for a closed conflict
func NewConflictResolvedEvent(c *SyncConflict) *ConflictResolvedEvent {
	value := ""
	if c.ResolvedValue != nil {
		value = c.ResolvedValue.String()
	}
	return &ConflictResolvedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventConflictResolved, "SyncConflict", c.ID, c.StoreID),
		ProductID:       c.ProductID.String(),
		Strategy:        string(c.ResolutionStrategy),
		ResolvedValue:   value,
		Partial:         c.ResolvedPartially,
	}
}

// ConflictEscalatedEvent is emitted when a conflict is parked for an operator
type ConflictEscalatedEvent struct {
	shared.BaseDomainEvent
	ProductID string `json:"product_id"`
	Severity  string `json:"severity"`
	Reason    string `json:"reason"`
}

// NewConflictEscalatedEvent creates an escalation event
func NewConflictEscalatedEvent(c *SyncConflict) *ConflictEscalatedEvent {
	return &ConflictEscalatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventConflictEscalated, "SyncConflict", c.ID, c.StoreID),
		ProductID:       c.ProductID.String(),
		Severity:        string(c.Severity),
		Reason:          c.ResolutionReason,
	}
}
