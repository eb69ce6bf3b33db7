package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormProductMappingRepository implements channel.ProductMappingRepository using GORM
type GormProductMappingRepository struct {
	db *gorm.DB
}

// NewGormProductMappingRepository creates a new GormProductMappingRepository
func NewGormProductMappingRepository(db *gorm.DB) *GormProductMappingRepository {
	return &GormProductMappingRepository{db: db}
}

// FindByID finds a product mapping by its ID
func (r *GormProductMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.ProductMapping, error) {
	var model models.ProductMappingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByChannelAndProduct finds the mapping for a channel-product pair
func (r *GormProductMappingRepository) FindByChannelAndProduct(ctx context.Context, channelID, productID uuid.UUID) (*channel.ProductMapping, error) {
	var model models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND product_id = ?", channelID, productID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNativeRef finds the mapping for a channel-native product reference.
// This is the webhook ingestion path: events identify products by the
// channel's own identifier.
func (r *GormProductMappingRepository) FindByNativeRef(ctx context.Context, channelID uuid.UUID, nativeProductRef string) (*channel.ProductMapping, error) {
	var model models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND native_product_ref = ?", channelID, nativeProductRef).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByChannel finds all active mappings for a channel
func (r *GormProductMappingRepository) FindActiveByChannel(ctx context.Context, channelID uuid.UUID) ([]*channel.ProductMapping, error) {
	var mappingModels []models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND is_active = ?", channelID, true).
		Order("created_at ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, err
	}
	return toDomainMappings(mappingModels), nil
}

// FindByProduct finds all mappings for a product across channels
func (r *GormProductMappingRepository) FindByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*channel.ProductMapping, error) {
	var mappingModels []models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Order("created_at ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, err
	}
	return toDomainMappings(mappingModels), nil
}

// Save creates or updates a product mapping
func (r *GormProductMappingRepository) Save(ctx context.Context, mapping *channel.ProductMapping) error {
	model := models.ProductMappingModelFromDomain(mapping)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete deletes a product mapping
func (r *GormProductMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ProductMappingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrMappingNotFound
	}
	return nil
}

func toDomainMappings(mappingModels []models.ProductMappingModel) []*channel.ProductMapping {
	mappings := make([]*channel.ProductMapping, 0, len(mappingModels))
	for i := range mappingModels {
		mappings = append(mappings, mappingModels[i].ToDomain())
	}
	return mappings
}
