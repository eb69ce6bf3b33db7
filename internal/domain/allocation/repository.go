package allocation

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists InventoryAllocation aggregates.
//
// SaveWithVersion performs a compare-and-swap on the aggregate's Version
// column and returns shared.ErrConcurrencyConflict when the stored version
// moved underneath the caller; callers reload and retry.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*InventoryAllocation, error)
	FindByProduct(ctx context.Context, storeID, productID uuid.UUID) (*InventoryAllocation, error)
	FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*InventoryAllocation, error)
	Save(ctx context.Context, a *InventoryAllocation) error
	SaveWithVersion(ctx context.Context, a *InventoryAllocation, expectedVersion int) error
	Delete(ctx context.Context, id uuid.UUID) error
}
