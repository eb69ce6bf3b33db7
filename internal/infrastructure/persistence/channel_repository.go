package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormChannelRepository implements channel.Repository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// FindByID finds a channel by its ID
func (r *GormChannelRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error) {
	var model models.ChannelModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrChannelNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStoreAndType finds a channel by store and channel type
func (r *GormChannelRepository) FindByStoreAndType(ctx context.Context, storeID uuid.UUID, channelType channel.Type) (*channel.Channel, error) {
	var model models.ChannelModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND type = ?", storeID, channelType).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrChannelNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByStore finds all active channels for a store
func (r *GormChannelRepository) FindActiveByStore(ctx context.Context, storeID uuid.UUID) ([]*channel.Channel, error) {
	var channelModels []models.ChannelModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ?", storeID, true).
		Order("priority ASC, created_at ASC").
		Find(&channelModels).Error; err != nil {
		return nil, err
	}
	return toDomainChannels(channelModels), nil
}

// FindAllByStore finds all channels for a store
func (r *GormChannelRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*channel.Channel, error) {
	var channelModels []models.ChannelModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("priority ASC, created_at ASC").
		Find(&channelModels).Error; err != nil {
		return nil, err
	}
	return toDomainChannels(channelModels), nil
}

// Save creates or updates a channel
func (r *GormChannelRepository) Save(ctx context.Context, ch *channel.Channel) error {
	model := models.ChannelModelFromDomain(ch)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete deletes a channel
func (r *GormChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ChannelModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrChannelNotFound
	}
	return nil
}

func toDomainChannels(channelModels []models.ChannelModel) []*channel.Channel {
	channels := make([]*channel.Channel, 0, len(channelModels))
	for i := range channelModels {
		channels = append(channels, channelModels[i].ToDomain())
	}
	return channels
}
