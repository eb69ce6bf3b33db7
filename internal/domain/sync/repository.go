package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobFilter narrows job listings
type JobFilter struct {
	Category  *Category
	Status    *Status
	ChannelID *uuid.UUID
	ParentID  *uuid.UUID
	Page      int
	PageSize  int
}

// JobRepository persists SyncJob aggregates and backs the durable queue.
//
// ClaimNext atomically moves the oldest claimable QUEUED job of the
// category into the caller's hands; two workers never claim the same job.
// Webhook-category claims are FIFO per channel: a channel's next webhook
// job is only claimable once its earlier ones finished.
type JobRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	FindByStore(ctx context.Context, storeID uuid.UUID, filter JobFilter) ([]*SyncJob, int64, error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]*SyncJob, error)
	ClaimNext(ctx context.Context, category Category, now time.Time) (*SyncJob, error)
	Save(ctx context.Context, job *SyncJob) error
	CountByStatus(ctx context.Context, category Category) (map[Status]int64, error)
	FindDead(ctx context.Context, storeID uuid.UUID, limit int) ([]*SyncJob, error)
}

// SyncStatusRepository persists per-channel sync dashboard records
type SyncStatusRepository interface {
	FindByChannel(ctx context.Context, storeID, channelID uuid.UUID) (*SyncStatus, error)
	FindAllByStore(ctx context.Context, storeID uuid.UUID) ([]*SyncStatus, error)
	Save(ctx context.Context, status *SyncStatus) error
}

// WebhookRecordRepository persists the webhook audit trail
type WebhookRecordRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookRecord, error)
	FindByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*WebhookRecord, error)
	Save(ctx context.Context, record *WebhookRecord) error
}
