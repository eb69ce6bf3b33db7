package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormConflictRepository implements conflict.Repository using GORM
type GormConflictRepository struct {
	db *gorm.DB
}

// NewGormConflictRepository creates a new GormConflictRepository
func NewGormConflictRepository(db *gorm.DB) *GormConflictRepository {
	return &GormConflictRepository{db: db}
}

// FindByID finds a conflict by its ID
func (r *GormConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*conflict.SyncConflict, error) {
	var model models.SyncConflictModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conflict.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStore lists a store's conflicts matching the filter with a total count
func (r *GormConflictRepository) FindByStore(ctx context.Context, storeID uuid.UUID, filter conflict.Filter) ([]*conflict.SyncConflict, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("store_id = ?", storeID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var conflictModels []models.SyncConflictModel
	if err := query.Order("created_at DESC").Find(&conflictModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainConflicts(conflictModels), total, nil
}

// FindPendingByProduct finds open conflicts for a product. Detection uses
// this to avoid piling duplicate conflicts onto a known disagreement.
func (r *GormConflictRepository) FindPendingByProduct(ctx context.Context, storeID, productID uuid.UUID) ([]*conflict.SyncConflict, error) {
	var conflictModels []models.SyncConflictModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ? AND status IN ?", storeID, productID,
			[]conflict.Status{conflict.StatusPending, conflict.StatusResolving, conflict.StatusManualReview}).
		Order("created_at ASC").
		Find(&conflictModels).Error; err != nil {
		return nil, err
	}
	return toDomainConflicts(conflictModels), nil
}

// FindSince finds conflicts detected after the given time
func (r *GormConflictRepository) FindSince(ctx context.Context, storeID uuid.UUID, since time.Time) ([]*conflict.SyncConflict, error) {
	var conflictModels []models.SyncConflictModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND created_at >= ?", storeID, since).
		Order("created_at DESC").
		Find(&conflictModels).Error; err != nil {
		return nil, err
	}
	return toDomainConflicts(conflictModels), nil
}

// Save creates or updates a conflict
func (r *GormConflictRepository) Save(ctx context.Context, c *conflict.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(c)
	return r.db.WithContext(ctx).Save(model).Error
}

func toDomainConflicts(conflictModels []models.SyncConflictModel) []*conflict.SyncConflict {
	conflicts := make([]*conflict.SyncConflict, 0, len(conflictModels))
	for i := range conflictModels {
		conflicts = append(conflicts, conflictModels[i].ToDomain())
	}
	return conflicts
}
