package sync

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/sync"
)

// deadJobLimit caps how many dead-letter jobs a queue report carries
const deadJobLimit = 50

// Monitor aggregates sync outcomes, queue depth and channel health into
// operator-facing reports
type Monitor struct {
	jobs     sync.JobRepository
	statuses sync.SyncStatusRepository
	channels channel.Repository
	registry channel.Registry
	logger   *zap.Logger
}

// NewMonitor creates a new Monitor
func NewMonitor(
	jobs sync.JobRepository,
	statuses sync.SyncStatusRepository,
	channels channel.Repository,
	registry channel.Registry,
	logger *zap.Logger,
) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		jobs:     jobs,
		statuses: statuses,
		channels: channels,
		registry: registry,
		logger:   logger,
	}
}

// ChannelStatuses joins every channel's sync dashboard record with its live
// breaker state and reliability score. Channels that never synced appear
// as idle.
func (m *Monitor) ChannelStatuses(ctx context.Context, storeID uuid.UUID) ([]*ChannelStatusResponse, error) {
	channels, err := m.channels.FindAllByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	statuses, err := m.statuses.FindAllByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	byChannel := make(map[uuid.UUID]*sync.SyncStatus, len(statuses))
	for _, s := range statuses {
		byChannel[s.ChannelID] = s
	}

	responses := make([]*ChannelStatusResponse, 0, len(channels))
	for _, ch := range channels {
		resp := &ChannelStatusResponse{
			ChannelID:        ch.ID,
			ChannelName:      ch.Name,
			ChannelType:      ch.Type,
			State:            sync.StateIdle,
			Breaker:          m.registry.BreakerState(ch.ID),
			ReliabilityScore: ch.ReliabilityScore,
		}
		if s, ok := byChannel[ch.ID]; ok {
			resp.State = s.State
			resp.LastRunAt = s.LastRunAt
			resp.ProductsProcessed = s.ProductsProcessed
			resp.ErrorCount = s.ErrorCount
			resp.LastError = s.LastError
			if s.LastDuration > 0 {
				resp.LastDuration = s.LastDuration.String()
			}
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// QueueReport returns per-category job counts and the store's most recent
// dead-letter jobs
func (m *Monitor) QueueReport(ctx context.Context, storeID uuid.UUID) (*QueueReport, error) {
	categories := []sync.Category{
		sync.CategorySync,
		sync.CategoryAllocation,
		sync.CategoryConflict,
		sync.CategoryWebhook,
	}

	report := &QueueReport{Categories: make([]CategoryDepth, 0, len(categories))}
	for _, category := range categories {
		counts, err := m.jobs.CountByStatus(ctx, category)
		if err != nil {
			return nil, err
		}
		report.Categories = append(report.Categories, CategoryDepth{
			Category: category,
			Counts:   counts,
		})
	}

	dead, err := m.jobs.FindDead(ctx, storeID, deadJobLimit)
	if err != nil {
		return nil, err
	}
	report.DeadJobs = make([]*JobResponse, 0, len(dead))
	for _, j := range dead {
		report.DeadJobs = append(report.DeadJobs, toJobResponse(j))
	}
	return report, nil
}
