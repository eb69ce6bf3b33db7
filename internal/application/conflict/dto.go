package conflict

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/conflict"
)

// ListFilter narrows conflict listings from query parameters
type ListFilter struct {
	Status    string     `form:"status" binding:"omitempty,oneof=PENDING RESOLVING RESOLVED MANUAL_REVIEW"`
	Type      string     `form:"type"`
	ProductID *uuid.UUID `form:"product_id"`
	Page      int        `form:"page" binding:"omitempty,min=1"`
	PageSize  int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ResolveRequest applies a resolution strategy to a conflict
type ResolveRequest struct {
	Strategy string `json:"strategy" binding:"required"`
	// SourcePriority orders channel types, highest priority first
	// (source_priority only)
	SourcePriority []string `json:"source_priority"`
	// AggregateMethod selects average or median (aggregate_approach only)
	AggregateMethod string `json:"aggregate_method" binding:"omitempty,oneof=average median"`
}

// ConflictResponse is the API view of a conflict
type ConflictResponse struct {
	ID                 uuid.UUID              `json:"id"`
	ProductID          uuid.UUID              `json:"product_id"`
	Type               conflict.Type          `json:"type"`
	Severity           conflict.Severity      `json:"severity"`
	Discrepancy        decimal.Decimal        `json:"discrepancy"`
	Observations       []conflict.Observation `json:"observations"`
	Status             conflict.Status        `json:"status"`
	ResolutionStrategy conflict.Strategy      `json:"resolution_strategy,omitempty"`
	ResolvedValue      *decimal.Decimal       `json:"resolved_value,omitempty"`
	ResolutionReason   string                 `json:"resolution_reason,omitempty"`
	Confidence         *decimal.Decimal       `json:"confidence,omitempty"`
	ResolvedPartially  bool                   `json:"resolved_partially"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// ConflictListResponse pages conflicts
type ConflictListResponse struct {
	Items    []*ConflictResponse `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func toConflictResponse(c *conflict.SyncConflict) *ConflictResponse {
	return &ConflictResponse{
		ID:                 c.ID,
		ProductID:          c.ProductID,
		Type:               c.Type,
		Severity:           c.Severity,
		Discrepancy:        c.Discrepancy,
		Observations:       c.Observations,
		Status:             c.Status,
		ResolutionStrategy: c.ResolutionStrategy,
		ResolvedValue:      c.ResolvedValue,
		ResolutionReason:   c.ResolutionReason,
		Confidence:         c.Confidence,
		ResolvedPartially:  c.ResolvedPartially,
		ResolvedAt:         c.ResolvedAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}
