package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appallocation "github.com/channelsync/backend/internal/application/allocation"
	appconflict "github.com/channelsync/backend/internal/application/conflict"
	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/queue"
)

// perChannelEstimate sizes the rough duration hint returned by SyncAllChannels
const perChannelEstimate = 30 * time.Second

// SyncService orchestrates reconciliation runs. Triggers only enqueue jobs;
// the queue's worker pools do the actual work through the handlers this
// service registers.
type SyncService struct {
	jobs        sync.JobRepository
	statuses    sync.SyncStatusRepository
	channels    channel.Repository
	mappings    channel.ProductMappingRepository
	allocations allocation.Repository
	registry    channel.Registry
	queue       *queue.Queue
	detector    *conflict.Detector

	conflictSvc   *appconflict.ConflictService
	allocationSvc *appallocation.AllocationService

	conflictCfg   config.ConflictConfig
	allocationCfg config.AllocationConfig
	logger        *zap.Logger
}

// NewSyncService creates the orchestrator and registers its job handlers
// on the queue
func NewSyncService(
	jobs sync.JobRepository,
	statuses sync.SyncStatusRepository,
	channels channel.Repository,
	mappings channel.ProductMappingRepository,
	allocations allocation.Repository,
	registry channel.Registry,
	q *queue.Queue,
	detector *conflict.Detector,
	conflictSvc *appconflict.ConflictService,
	allocationSvc *appallocation.AllocationService,
	conflictCfg config.ConflictConfig,
	allocationCfg config.AllocationConfig,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncService{
		jobs:          jobs,
		statuses:      statuses,
		channels:      channels,
		mappings:      mappings,
		allocations:   allocations,
		registry:      registry,
		queue:         q,
		detector:      detector,
		conflictSvc:   conflictSvc,
		allocationSvc: allocationSvc,
		conflictCfg:   conflictCfg,
		allocationCfg: allocationCfg,
		logger:        logger,
	}
	if q != nil {
		q.RegisterHandler(KindSyncAll, s.handleSyncAll)
		q.RegisterHandler(KindSyncChannel, s.handleSyncChannel)
		q.RegisterHandler(KindResolveConflict, s.handleResolveConflict)
		q.RegisterHandler(KindRebalance, s.handleRebalance)
		q.RegisterHandler(KindProcessWebhook, s.handleWebhook)
	}
	return s
}

// SyncAllChannels enqueues a full reconciliation run across the store's
// active channels and returns immediately
func (s *SyncService) SyncAllChannels(ctx context.Context, storeID uuid.UUID) (*TriggerResponse, error) {
	active, err := s.channels.FindActiveByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: store has no active channels", shared.ErrInvalidState)
	}

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncAll, "{}")
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("full sync enqueued",
		zap.String("job_id", job.ID.String()),
		zap.Int("channels", len(active)),
	)
	return &TriggerResponse{
		JobID:             job.ID,
		EstimatedDuration: (time.Duration(len(active)) * perChannelEstimate).String(),
	}, nil
}

// SyncSingleChannel enqueues a reconciliation run for one channel
func (s *SyncService) SyncSingleChannel(ctx context.Context, storeID, channelID uuid.UUID) (*TriggerResponse, error) {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.StoreID != storeID {
		return nil, channel.ErrChannelNotFound
	}
	if !ch.IsActive {
		return nil, fmt.Errorf("%w: channel %s is inactive", shared.ErrInvalidState, channelID)
	}

	job := sync.NewSyncJob(storeID, sync.CategorySync, KindSyncChannel,
		marshalPayload(syncChannelPayload{ChannelID: channelID}))
	channelRef := channelID
	job.ChannelID = &channelRef
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return &TriggerResponse{JobID: job.ID, EstimatedDuration: perChannelEstimate.String()}, nil
}

// RequeueDeadJob gives one DEAD job a fresh retry budget
func (s *SyncService) RequeueDeadJob(ctx context.Context, jobID uuid.UUID) (*JobResponse, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Requeue(); err != nil {
		return nil, err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// handleSyncAll fans a full run out into one child job per active channel.
// The parent stays RUNNING until the queue rolls the children up.
func (s *SyncService) handleSyncAll(ctx context.Context, job *sync.SyncJob) error {
	active, err := s.channels.FindActiveByStore(ctx, job.StoreID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	for _, ch := range active {
		child := sync.NewChildJob(job, KindSyncChannel,
			marshalPayload(syncChannelPayload{ChannelID: ch.ID}))
		channelRef := ch.ID
		child.ChannelID = &channelRef
		if err := s.queue.Enqueue(ctx, child); err != nil {
			return err
		}
	}
	return queue.ErrFanOutPending
}

// handleSyncChannel reconciles one channel: pull remote quantities, diff
// against the local allocation and hand discrepancies to the conflict
// engine. A breaker-open channel defers the job instead of failing it.
func (s *SyncService) handleSyncChannel(ctx context.Context, job *sync.SyncJob) error {
	var payload syncChannelPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: malformed sync payload: %v", shared.ErrInvalidInput, err)
	}

	if s.registry.BreakerState(payload.ChannelID) == channel.BreakerOpen {
		return channel.ErrBreakerOpen
	}

	ch, err := s.channels.FindByID(ctx, payload.ChannelID)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	status := s.loadStatus(ctx, job.StoreID, ch.ID)
	status.BeginRun()
	if err := s.statuses.Save(ctx, status); err != nil {
		return err
	}

	processed, err := s.reconcileChannel(ctx, job.StoreID, ch)
	if err != nil {
		status.FailRun(startedAt, err)
		if saveErr := s.statuses.Save(ctx, status); saveErr != nil {
			s.logger.Error("failed to record sync failure",
				zap.String("channel_id", ch.ID.String()), zap.Error(saveErr))
		}
		return err
	}

	status.FinishRun(startedAt, processed)
	if err := s.statuses.Save(ctx, status); err != nil {
		return err
	}

	s.logger.Info("channel synced",
		zap.String("channel_id", ch.ID.String()),
		zap.Int("products", processed),
		zap.Duration("duration", time.Since(startedAt)),
	)
	return nil
}

// reconcileChannel pulls every mapped product's remote quantity and raises
// conflicts where it disagrees with the local allocation
func (s *SyncService) reconcileChannel(ctx context.Context, storeID uuid.UUID, ch *channel.Channel) (int, error) {
	mappings, err := s.mappings.FindActiveByChannel(ctx, ch.ID)
	if err != nil {
		return 0, err
	}
	if len(mappings) == 0 {
		return 0, nil
	}

	refs := make([]string, 0, len(mappings))
	for _, m := range mappings {
		refs = append(refs, m.NativeProductRef)
	}
	remote, err := s.registry.PullInventory(ctx, ch.ID, refs)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	processed := 0
	for _, m := range mappings {
		remoteQty, ok := remote[m.NativeProductRef]
		if !ok {
			continue
		}
		processed++

		if err := s.diffAgainstLocal(ctx, storeID, ch, m.ProductID, remoteQty, now); err != nil {
			return processed, err
		}

		m.MarkSynced(now)
		if err := s.mappings.Save(ctx, m); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// diffAgainstLocal compares the channel's reported quantity with the
// channel's local allocation line and delegates any discrepancy to the
// conflict engine, queueing the resolution as its own job
func (s *SyncService) diffAgainstLocal(
	ctx context.Context,
	storeID uuid.UUID,
	ch *channel.Channel,
	productID uuid.UUID,
	remoteQty decimal.Decimal,
	reportedAt time.Time,
) error {
	local, err := s.allocations.FindByProduct(ctx, storeID, productID)
	if err != nil {
		if errors.Is(err, allocation.ErrAllocationNotFound) {
			return nil
		}
		return err
	}

	localQty := decimal.Zero
	for _, line := range local.Lines {
		if line.ChannelID == ch.ID {
			localQty = line.Allocated
			break
		}
	}

	observations := []conflict.Observation{
		{
			ChannelID:   ch.ID,
			ChannelType: string(ch.Type),
			Quantity:    remoteQty,
			ReportedAt:  reportedAt,
			Reliability: ch.ReliabilityScore,
		},
		{
			ChannelID:   uuid.Nil,
			ChannelType: appconflict.LocalObservationType,
			Quantity:    localQty,
			ReportedAt:  local.UpdatedAt,
			Reliability: decimal.NewFromInt(1),
		},
	}

	detected, err := s.detector.Detect(storeID, productID, observations)
	if err != nil {
		return err
	}
	if detected == nil {
		return nil
	}

	if err := s.conflictSvc.RecordDetected(ctx, detected); err != nil {
		return err
	}
	return s.enqueueResolution(ctx, storeID, detected.ID)
}

// enqueueResolution schedules automatic resolution with the configured
// default strategy
func (s *SyncService) enqueueResolution(ctx context.Context, storeID, conflictID uuid.UUID) error {
	strategy := s.conflictCfg.DefaultStrategy
	if strategy == "" {
		strategy = string(conflict.StrategyConservative)
	}
	job := sync.NewSyncJob(storeID, sync.CategoryConflict, KindResolveConflict,
		marshalPayload(resolveConflictPayload{ConflictID: conflictID, Strategy: strategy}))
	return s.queue.Enqueue(ctx, job)
}

// handleResolveConflict applies the configured strategy and, on success,
// schedules a rebalance for the affected product
func (s *SyncService) handleResolveConflict(ctx context.Context, job *sync.SyncJob) error {
	var payload resolveConflictPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: malformed conflict payload: %v", shared.ErrInvalidInput, err)
	}

	resp, err := s.conflictSvc.Resolve(ctx, payload.ConflictID, &appconflict.ResolveRequest{
		Strategy:        payload.Strategy,
		AggregateMethod: s.conflictCfg.AggregateMethod,
	})
	if err != nil {
		return err
	}
	if resp.Status != conflict.StatusResolved {
		// Manual review: nothing more for the job to do
		return nil
	}

	rebalance := sync.NewSyncJob(job.StoreID, sync.CategoryAllocation, KindRebalance,
		marshalPayload(rebalancePayload{ProductID: resp.ProductID, Strategy: s.allocationCfg.DefaultStrategy}))
	productRef := resp.ProductID
	rebalance.ProductID = &productRef
	return s.queue.Enqueue(ctx, rebalance)
}

// handleRebalance recomputes a product's allocation plan with the default
// strategy after channel-side stock moved
func (s *SyncService) handleRebalance(ctx context.Context, job *sync.SyncJob) error {
	var payload rebalancePayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: malformed rebalance payload: %v", shared.ErrInvalidInput, err)
	}

	strategy := payload.Strategy
	if strategy == "" {
		strategy = string(allocation.StrategyEqualDistribution)
	}

	_, err := s.allocationSvc.Rebalance(ctx, job.StoreID, payload.ProductID,
		&appallocation.RebalanceRequest{Strategy: strategy})
	if errors.Is(err, allocation.ErrAllocationNotFound) {
		return nil
	}
	return err
}

// handleWebhook applies one channel inventory event: look the product up by
// its native reference, diff the reported quantity against the local
// allocation and raise a conflict when they disagree
func (s *SyncService) handleWebhook(ctx context.Context, job *sync.SyncJob) error {
	var payload webhookJobPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("%w: malformed webhook payload: %v", shared.ErrInvalidInput, err)
	}
	var body inventoryEventBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return fmt.Errorf("%w: malformed webhook body: %v", shared.ErrInvalidInput, err)
	}

	ch, err := s.channels.FindByID(ctx, payload.ChannelID)
	if err != nil {
		return err
	}

	m, err := s.mappings.FindByNativeRef(ctx, ch.ID, body.ProductRef)
	if err != nil {
		if errors.Is(err, channel.ErrMappingNotFound) {
			s.logger.Warn("webhook for unmapped product, ignoring",
				zap.String("channel_id", ch.ID.String()),
				zap.String("product_ref", body.ProductRef),
				zap.String("topic", payload.Topic),
			)
			return nil
		}
		return err
	}

	if err := s.diffAgainstLocal(ctx, job.StoreID, ch, m.ProductID, body.Quantity, time.Now()); err != nil {
		return err
	}

	m.MarkSynced(time.Now())
	return s.mappings.Save(ctx, m)
}

// loadStatus fetches the channel's dashboard record, creating an idle one
// on first contact
func (s *SyncService) loadStatus(ctx context.Context, storeID, channelID uuid.UUID) *sync.SyncStatus {
	status, err := s.statuses.FindByChannel(ctx, storeID, channelID)
	if err != nil {
		return sync.NewSyncStatus(storeID, channelID)
	}
	return status
}
