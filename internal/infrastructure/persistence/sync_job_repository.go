package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormSyncJobRepository implements sync.JobRepository using GORM. The jobs
// table doubles as the durable work queue; claims lock the row so two
// workers never take the same job.
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// FindByID finds a job by its ID
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStore lists a store's jobs matching the filter with a total count
func (r *GormSyncJobRepository) FindByStore(ctx context.Context, storeID uuid.UUID, filter sync.JobFilter) ([]*sync.SyncJob, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("store_id = ?", storeID)

	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ChannelID != nil {
		query = query.Where("channel_id = ?", *filter.ChannelID)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
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

	var jobModels []models.SyncJobModel
	if err := query.Order("created_at DESC").Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainJobs(jobModels), total, nil
}

// FindChildren finds the fan-out children of a parent job
func (r *GormSyncJobRepository) FindChildren(ctx context.Context, parentID uuid.UUID) ([]*sync.SyncJob, error) {
	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels), nil
}

// ClaimNext atomically claims the oldest runnable QUEUED job of the
// category and moves it to RUNNING. SKIP LOCKED keeps concurrent workers
// from blocking on each other's claims. Returns (nil, nil) when nothing
// is claimable.
//
// Webhook claims are FIFO per channel: a job is skipped while an earlier
// webhook job for the same channel is still queued or running, so
// redeliveries and retries cannot reorder a channel's event stream.
func (r *GormSyncJobRepository) ClaimNext(ctx context.Context, category sync.Category, now time.Time) (*sync.SyncJob, error) {
	var claimed *sync.SyncJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("category = ? AND status = ? AND next_run_at <= ?", category, sync.StatusQueued, now)

		if category == sync.CategoryWebhook {
			query = query.Where(`channel_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM sync_jobs earlier
				WHERE earlier.channel_id = sync_jobs.channel_id
				  AND earlier.category = sync_jobs.category
				  AND earlier.status IN ?
				  AND earlier.created_at < sync_jobs.created_at
			)`, []sync.Status{sync.StatusQueued, sync.StatusRunning})
		}

		var model models.SyncJobModel
		if err := query.Order("next_run_at ASC, created_at ASC").First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		job := model.ToDomain()
		if err := job.Start(); err != nil {
			return err
		}

		model.FromDomain(job)
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Save creates or updates a job
func (r *GormSyncJobRepository) Save(ctx context.Context, job *sync.SyncJob) error {
	model := models.SyncJobModelFromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// CountByStatus counts a category's jobs per status
func (r *GormSyncJobRepository) CountByStatus(ctx context.Context, category sync.Category) (map[sync.Status]int64, error) {
	var rows []struct {
		Status sync.Status
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Select("status, COUNT(*) as count").
		Where("category = ?", category).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[sync.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// FindDead lists a store's dead-lettered jobs for operator review
func (r *GormSyncJobRepository) FindDead(ctx context.Context, storeID uuid.UUID, limit int) ([]*sync.SyncJob, error) {
	query := r.db.WithContext(ctx).
		Where("store_id = ? AND status = ?", storeID, sync.StatusDead).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobModels []models.SyncJobModel
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels), nil
}

func toDomainJobs(jobModels []models.SyncJobModel) []*sync.SyncJob {
	jobs := make([]*sync.SyncJob, 0, len(jobModels))
	for i := range jobModels {
		jobs = append(jobs, jobModels[i].ToDomain())
	}
	return jobs
}
