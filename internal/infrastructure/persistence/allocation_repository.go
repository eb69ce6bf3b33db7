package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormAllocationRepository implements allocation.Repository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByID finds an allocation by its ID
func (r *GormAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*allocation.InventoryAllocation, error) {
	var model models.InventoryAllocationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, allocation.ErrAllocationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProduct finds the allocation for a store's product
func (r *GormAllocationRepository) FindByProduct(ctx context.Context, storeID, productID uuid.UUID) (*allocation.InventoryAllocation, error) {
	var model models.InventoryAllocationModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, allocation.ErrAllocationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllByStore finds all allocations for a store
func (r *GormAllocationRepository) FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*allocation.InventoryAllocation, error) {
	var allocationModels []models.InventoryAllocationModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}

	allocations := make([]*allocation.InventoryAllocation, 0, len(allocationModels))
	for i := range allocationModels {
		allocations = append(allocations, allocationModels[i].ToDomain())
	}
	return allocations, nil
}

// Save creates or updates an allocation without a version check
func (r *GormAllocationRepository) Save(ctx context.Context, a *allocation.InventoryAllocation) error {
	model := models.InventoryAllocationModelFromDomain(a)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithVersion updates the allocation with a compare-and-swap on the
// version column. Reservation and allocation writes race with concurrent
// webhook workers; a stale version returns shared.ErrConcurrencyConflict
// and the caller reloads and retries.
func (r *GormAllocationRepository) SaveWithVersion(ctx context.Context, a *allocation.InventoryAllocation, expectedVersion int) error {
	model := models.InventoryAllocationModelFromDomain(a)
	model.Version = expectedVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.InventoryAllocationModel{}).
		Where("id = ? AND version = ?", a.ID, expectedVersion).
		Updates(map[string]interface{}{
			"physical_stock": model.PhysicalStock,
			"buffer_percent": model.BufferPercent,
			"lines":          model.LinesJSON,
			"reservations":   model.ReservationsJSON,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	a.Version = expectedVersion + 1
	return nil
}

// Delete deletes an allocation
func (r *GormAllocationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.InventoryAllocationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return allocation.ErrAllocationNotFound
	}
	return nil
}
