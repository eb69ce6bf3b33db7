package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormSyncStatusRepository implements sync.SyncStatusRepository using GORM
type GormSyncStatusRepository struct {
	db *gorm.DB
}

// NewGormSyncStatusRepository creates a new GormSyncStatusRepository
func NewGormSyncStatusRepository(db *gorm.DB) *GormSyncStatusRepository {
	return &GormSyncStatusRepository{db: db}
}

// FindByChannel finds the sync status record for a channel
func (r *GormSyncStatusRepository) FindByChannel(ctx context.Context, storeID, channelID uuid.UUID) (*sync.SyncStatus, error) {
	var model models.SyncStatusModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND channel_id = ?", storeID, channelID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrStatusNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllByStore finds all sync status records for a store
func (r *GormSyncStatusRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*sync.SyncStatus, error) {
	var statusModels []models.SyncStatusModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at ASC").
		Find(&statusModels).Error; err != nil {
		return nil, err
	}

	statuses := make([]*sync.SyncStatus, 0, len(statusModels))
	for i := range statusModels {
		statuses = append(statuses, statusModels[i].ToDomain())
	}
	return statuses, nil
}

// Save creates or updates a sync status record
func (r *GormSyncStatusRepository) Save(ctx context.Context, status *sync.SyncStatus) error {
	model := models.SyncStatusModelFromDomain(status)
	return r.db.WithContext(ctx).Save(model).Error
}
