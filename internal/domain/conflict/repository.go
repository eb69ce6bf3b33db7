package conflict

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows conflict listings
type Filter struct {
	Status    *Status
	Type      *Type
	ProductID *uuid.UUID
	Since     *time.Time
	Page      int
	PageSize  int
}

// Repository persists SyncConflict aggregates
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*SyncConflict, error)
	FindByStore(ctx context.Context, storeID uuid.UUID, filter Filter) ([]*SyncConflict, int64, error)
	FindPendingByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*SyncConflict, error)
	FindSince(ctx context.Context, storeID uuid.UUID, since time.Time) ([]*SyncConflict, error)
	Save(ctx context.Context, c *SyncConflict) error
}
