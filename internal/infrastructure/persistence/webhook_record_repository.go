package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormWebhookRecordRepository implements sync.WebhookRecordRepository using GORM
type GormWebhookRecordRepository struct {
	db *gorm.DB
}

// NewGormWebhookRecordRepository creates a new GormWebhookRecordRepository
func NewGormWebhookRecordRepository(db *gorm.DB) *GormWebhookRecordRepository {
	return &GormWebhookRecordRepository{db: db}
}

// FindByID finds a webhook record by its ID
func (r *GormWebhookRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.WebhookRecord, error) {
	var model models.WebhookRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrWebhookNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByChannel lists a channel's most recent webhook records
func (r *GormWebhookRecordRepository) FindByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*sync.WebhookRecord, error) {
	query := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recordModels []models.WebhookRecordModel
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]*sync.WebhookRecord, 0, len(recordModels))
	for i := range recordModels {
		records = append(records, recordModels[i].ToDomain())
	}
	return records, nil
}

// Save creates or updates a webhook record
func (r *GormWebhookRecordRepository) Save(ctx context.Context, record *sync.WebhookRecord) error {
	model := models.WebhookRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Save(model).Error
}
