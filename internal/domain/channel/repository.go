package channel

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists Channel aggregates
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	FindByStoreAndType(ctx context.Context, storeID uuid.UUID, channelType Type) (*Channel, error)
	FindActiveByStore(ctx context.Context, storeID uuid.UUID) ([]*Channel, error)
	FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*Channel, error)
	Save(ctx context.Context, ch *Channel) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProductMappingRepository persists ProductMapping aggregates
type ProductMappingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ProductMapping, error)
	FindByChannelAndProduct(ctx context.Context, channelID, productID uuid.UUID) (*ProductMapping, error)
	FindByNativeRef(ctx context.Context, channelID uuid.UUID, nativeProductRef string) (*ProductMapping, error)
	FindActiveByChannel(ctx context.Context, channelID uuid.UUID) ([]*ProductMapping, error)
	FindByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*ProductMapping, error)
	Save(ctx context.Context, mapping *ProductMapping) error
	Delete(ctx context.Context, id uuid.UUID) error
}
