package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/sync"
)

// SyncJobModel is the persistence model for the SyncJob aggregate. The
// composite claim index mirrors the queue's claim predicate.
type SyncJobModel struct {
	StoreAggregateModel

	Category  sync.Category `gorm:"type:varchar(15);not null;index:idx_sync_jobs_claim,priority:1"`
	Kind      string        `gorm:"type:varchar(50);not null"`
	Status    sync.Status   `gorm:"type:varchar(10);not null;index:idx_sync_jobs_claim,priority:2"`
	ChannelID *uuid.UUID    `gorm:"type:uuid;index"`
	ProductID *uuid.UUID    `gorm:"type:uuid"`
	ParentID  *uuid.UUID    `gorm:"type:uuid;index"`

	Payload     string    `gorm:"type:jsonb"`
	Attempts    int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null;default:4"`
	NextRunAt   time.Time `gorm:"not null;index:idx_sync_jobs_claim,priority:3"`
	LastError   string    `gorm:"type:text"`
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob
func (m *SyncJobModel) ToDomain() *sync.SyncJob {
	return &sync.SyncJob{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		Category:           m.Category,
		Kind:               m.Kind,
		Status:             m.Status,
		ChannelID:          m.ChannelID,
		ProductID:          m.ProductID,
		ParentID:           m.ParentID,
		Payload:            m.Payload,
		Attempts:           m.Attempts,
		MaxAttempts:        m.MaxAttempts,
		NextRunAt:          m.NextRunAt,
		LastError:          m.LastError,
		StartedAt:          m.StartedAt,
		FinishedAt:         m.FinishedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncJob
func (m *SyncJobModel) FromDomain(j *sync.SyncJob) {
	m.FromDomainStoreAggregateRoot(j.StoreAggregateRoot)
	m.Category = j.Category
	m.Kind = j.Kind
	m.Status = j.Status
	m.ChannelID = j.ChannelID
	m.ProductID = j.ProductID
	m.ParentID = j.ParentID
	m.Payload = j.Payload
	m.Attempts = j.Attempts
	m.MaxAttempts = j.MaxAttempts
	m.NextRunAt = j.NextRunAt
	m.LastError = j.LastError
	m.StartedAt = j.StartedAt
	m.FinishedAt = j.FinishedAt
}

// SyncJobModelFromDomain creates a new persistence model from a domain SyncJob
func SyncJobModelFromDomain(j *sync.SyncJob) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}

// SyncStatusModel is the persistence model for the SyncStatus aggregate
type SyncStatusModel struct {
	StoreAggregateModel

	ChannelID         uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uq_sync_statuses_store_channel,priority:2"`
	State             sync.ChannelState `gorm:"type:varchar(10);not null;default:'IDLE'"`
	LastRunAt         *time.Time
	LastDurationMS    int64  `gorm:"not null;default:0"`
	ProductsProcessed int    `gorm:"not null;default:0"`
	ErrorCount        int    `gorm:"not null;default:0"`
	LastError         string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncStatusModel) TableName() string {
	return "sync_statuses"
}

// ToDomain converts the persistence model to a domain SyncStatus
func (m *SyncStatusModel) ToDomain() *sync.SyncStatus {
	return &sync.SyncStatus{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		ChannelID:          m.ChannelID,
		State:              m.State,
		LastRunAt:          m.LastRunAt,
		LastDuration:       time.Duration(m.LastDurationMS) * time.Millisecond,
		ProductsProcessed:  m.ProductsProcessed,
		ErrorCount:         m.ErrorCount,
		LastError:          m.LastError,
	}
}

// FromDomain populates the persistence model from a domain SyncStatus
func (m *SyncStatusModel) FromDomain(s *sync.SyncStatus) {
	m.FromDomainStoreAggregateRoot(s.StoreAggregateRoot)
	m.ChannelID = s.ChannelID
	m.State = s.State
	m.LastRunAt = s.LastRunAt
	m.LastDurationMS = s.LastDuration.Milliseconds()
	m.ProductsProcessed = s.ProductsProcessed
	m.ErrorCount = s.ErrorCount
	m.LastError = s.LastError
}

// SyncStatusModelFromDomain creates a new persistence model from a domain SyncStatus
func SyncStatusModelFromDomain(s *sync.SyncStatus) *SyncStatusModel {
	m := &SyncStatusModel{}
	m.FromDomain(s)
	return m
}

// WebhookRecordModel is the persistence model for the WebhookRecord aggregate
type WebhookRecordModel struct {
	StoreAggregateModel

	ChannelID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	Topic         string              `gorm:"type:varchar(100);not null"`
	NativeEventID string              `gorm:"type:varchar(100);not null"`
	Outcome       sync.WebhookOutcome `gorm:"type:varchar(20);not null"`
	JobID         *uuid.UUID          `gorm:"type:uuid"`
	Detail        string              `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (WebhookRecordModel) TableName() string {
	return "webhook_records"
}

// ToDomain converts the persistence model to a domain WebhookRecord
func (m *WebhookRecordModel) ToDomain() *sync.WebhookRecord {
	return &sync.WebhookRecord{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		ChannelID:          m.ChannelID,
		Topic:              m.Topic,
		NativeEventID:      m.NativeEventID,
		Outcome:            m.Outcome,
		JobID:              m.JobID,
		Detail:             m.Detail,
	}
}

// FromDomain populates the persistence model from a domain WebhookRecord
func (m *WebhookRecordModel) FromDomain(w *sync.WebhookRecord) {
	m.FromDomainStoreAggregateRoot(w.StoreAggregateRoot)
	m.ChannelID = w.ChannelID
	m.Topic = w.Topic
	m.NativeEventID = w.NativeEventID
	m.Outcome = w.Outcome
	m.JobID = w.JobID
	m.Detail = w.Detail
}

// WebhookRecordModelFromDomain creates a new persistence model from a domain WebhookRecord
func WebhookRecordModelFromDomain(w *sync.WebhookRecord) *WebhookRecordModel {
	m := &WebhookRecordModel{}
	m.FromDomain(w)
	return m
}
