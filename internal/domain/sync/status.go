package sync

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/shared"
)

var ErrStatusNotFound = errors.New("sync: sync status not found")

// ChannelState summarizes a channel's sync health at a glance
type ChannelState string

const (
	StateIdle    ChannelState = "IDLE"
	StateRunning ChannelState = "RUNNING"
	StateError   ChannelState = "ERROR"
)

// SyncStatus is the per-channel sync dashboard record, updated after
// every run
type SyncStatus struct {
	shared.StoreAggregateRoot

	ChannelID         uuid.UUID
	State             ChannelState
	LastRunAt         *time.Time
	LastDuration      time.Duration
	ProductsProcessed int
	ErrorCount        int
	LastError         string
}

// NewSyncStatus creates an idle status record for a channel
func NewSyncStatus(storeID, channelID uuid.UUID) *SyncStatus {
	return &SyncStatus{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		ChannelID:          channelID,
		State:              StateIdle,
	}
}

// BeginRun marks the channel as syncing
func (s *SyncStatus) BeginRun() {
	s.State = StateRunning
	s.Touch()
}

// FinishRun records a completed run
func (s *SyncStatus) FinishRun(startedAt time.Time, productsProcessed int) {
	now := time.Now()
	s.State = StateIdle
	s.LastRunAt = &startedAt
	s.LastDuration = now.Sub(startedAt)
	s.ProductsProcessed = productsProcessed
	s.LastError = ""
	s.UpdatedAt = now
}

// FailRun records a failed run
func (s *SyncStatus) FailRun(startedAt time.Time, cause error) {
	now := time.Now()
	s.State = StateError
	s.LastRunAt = &startedAt
	s.LastDuration = now.Sub(startedAt)
	s.ErrorCount++
	if cause != nil {
		s.LastError = cause.Error()
	}
	s.UpdatedAt = now
}
