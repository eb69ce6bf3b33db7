package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/domain/shared"
)

// LocalObservationType marks an observation sourced from the local
// allocation rather than a remote channel. Local observations are never
// pushed back to.
const LocalObservationType = "LOCAL"

// ErrPushIncomplete is returned when the resolved value did not reach every
// channel; the conflict stays RESOLVING and the push can be retried or the
// partial outcome explicitly accepted. It wraps ErrRequestFailed so queue
// workers classify it as retryable.
var ErrPushIncomplete = fmt.Errorf("conflict: resolved value not pushed to every channel: %w", channel.ErrRequestFailed)

// ConflictService detects cross-channel inventory disagreements and drives
// them through resolution and push-back.
type ConflictService struct {
	conflicts conflict.Repository
	channels  channel.Repository
	mappings  channel.ProductMappingRepository
	registry  channel.Registry
	detector  *conflict.Detector
	events    shared.EventPublisher
	logger    *zap.Logger
}

// NewConflictService creates a new ConflictService
func NewConflictService(
	conflicts conflict.Repository,
	channels channel.Repository,
	mappings channel.ProductMappingRepository,
	registry channel.Registry,
	detector *conflict.Detector,
	logger *zap.Logger,
) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		conflicts: conflicts,
		channels:  channels,
		mappings:  mappings,
		registry:  registry,
		detector:  detector,
		logger:    logger,
	}
}

// SetEventPublisher sets the publisher for domain events
func (s *ConflictService) SetEventPublisher(publisher shared.EventPublisher) {
	s.events = publisher
}

// Get returns one conflict by ID
func (s *ConflictService) Get(ctx context.Context, id uuid.UUID) (*ConflictResponse, error) {
	c, err := s.conflicts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toConflictResponse(c), nil
}

// List returns the store's conflicts, newest first
func (s *ConflictService) List(ctx context.Context, storeID uuid.UUID, filter ListFilter) (*ConflictListResponse, error) {
	domainFilter := conflict.Filter{
		ProductID: filter.ProductID,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}
	if filter.Status != "" {
		status := conflict.Status(filter.Status)
		domainFilter.Status = &status
	}
	if filter.Type != "" {
		conflictType := conflict.Type(filter.Type)
		if !conflictType.IsValid() {
			return nil, fmt.Errorf("%w: unknown conflict type %q", shared.ErrInvalidInput, filter.Type)
		}
		domainFilter.Type = &conflictType
	}
	if domainFilter.Page < 1 {
		domainFilter.Page = 1
	}
	if domainFilter.PageSize < 1 {
		domainFilter.PageSize = 20
	}

	items, total, err := s.conflicts.FindByStore(ctx, storeID, domainFilter)
	if err != nil {
		return nil, err
	}

	responses := make([]*ConflictResponse, 0, len(items))
	for _, c := range items {
		responses = append(responses, toConflictResponse(c))
	}
	return &ConflictListResponse{
		Items:    responses,
		Total:    total,
		Page:     domainFilter.Page,
		PageSize: domainFilter.PageSize,
	}, nil
}

// DetectForProduct pulls every mapped channel's quantity for the product and
// raises a conflict when they disagree beyond the threshold. Channels that
// cannot be reached are skipped; detection works with what answered.
func (s *ConflictService) DetectForProduct(ctx context.Context, storeID, productID uuid.UUID) (*ConflictResponse, error) {
	observations, err := s.observe(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.detector.Detect(storeID, productID, observations)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	if err := s.conflicts.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, c)

	s.logger.Info("conflict detected",
		zap.String("conflict_id", c.ID.String()),
		zap.String("product_id", productID.String()),
		zap.String("severity", string(c.Severity)),
		zap.String("discrepancy", c.Discrepancy.String()),
	)
	return toConflictResponse(c), nil
}

// RecordDetected persists an externally-built conflict (the sync loop's
// local-versus-remote diff) and publishes its events
func (s *ConflictService) RecordDetected(ctx context.Context, c *conflict.SyncConflict) error {
	if err := s.conflicts.Save(ctx, c); err != nil {
		return err
	}
	s.publishEvents(ctx, c)
	return nil
}

// Resolve applies a strategy to the conflict and pushes the resolved value
// to every remote channel that reported an observation. The conflict closes
// only when every push succeeds; otherwise it stays RESOLVING and
// ErrPushIncomplete is returned so the caller can retry.
func (s *ConflictService) Resolve(ctx context.Context, conflictID uuid.UUID, req *ResolveRequest) (*ConflictResponse, error) {
	c, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	strategy := conflict.Strategy(req.Strategy)
	resolution, err := conflict.Resolve(strategy, c.Observations, conflict.Options{
		SourcePriority:  req.SourcePriority,
		AggregateMethod: conflict.AggregateMethod(req.AggregateMethod),
	})
	if err != nil {
		return nil, err
	}

	if err := c.RecordResolution(resolution); err != nil {
		return nil, err
	}
	if err := s.conflicts.Save(ctx, c); err != nil {
		return nil, err
	}

	if resolution.RequiresManualIntervention {
		s.publishEvents(ctx, c)
		s.logger.Warn("conflict parked for manual review",
			zap.String("conflict_id", c.ID.String()),
			zap.String("reason", resolution.Reason),
		)
		return toConflictResponse(c), nil
	}

	failed := s.pushResolvedValue(ctx, c)
	if len(failed) > 0 {
		s.publishEvents(ctx, c)
		return toConflictResponse(c), fmt.Errorf("%w: %d of %d channels unreachable",
			ErrPushIncomplete, len(failed), len(c.Observations))
	}

	if err := c.Close(false); err != nil {
		return nil, err
	}
	if err := s.conflicts.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, c)

	s.logger.Info("conflict resolved",
		zap.String("conflict_id", c.ID.String()),
		zap.String("strategy", req.Strategy),
		zap.String("resolved_value", c.ResolvedValue.String()),
	)
	return toConflictResponse(c), nil
}

// AcceptPartial closes a RESOLVING conflict whose push-back could not reach
// every channel, recording the partial outcome
func (s *ConflictService) AcceptPartial(ctx context.Context, conflictID uuid.UUID) (*ConflictResponse, error) {
	c, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if err := c.Close(true); err != nil {
		return nil, err
	}
	if err := s.conflicts.Save(ctx, c); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, c)
	return toConflictResponse(c), nil
}

// AnalyzePatterns summarizes the store's conflict history over the trailing
// period, ordered by conflict count
func (s *ConflictService) AnalyzePatterns(ctx context.Context, storeID uuid.UUID, periodDays int) ([]conflict.PatternSummary, error) {
	if periodDays < 1 {
		periodDays = 30
	}
	since := time.Now().AddDate(0, 0, -periodDays)
	conflicts, err := s.conflicts.FindSince(ctx, storeID, since)
	if err != nil {
		return nil, err
	}
	return conflict.AnalyzePatterns(conflicts), nil
}

// observe collects one observation per mapped, reachable channel
func (s *ConflictService) observe(ctx context.Context, storeID, productID uuid.UUID) ([]conflict.Observation, error) {
	mappings, err := s.mappings.FindByProduct(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}

	observations := make([]conflict.Observation, 0, len(mappings))
	for _, m := range mappings {
		if !m.IsActive {
			continue
		}
		ch, err := s.channels.FindByID(ctx, m.ChannelID)
		if err != nil {
			return nil, err
		}

		quantities, err := s.registry.PullInventory(ctx, m.ChannelID, []string{m.NativeProductRef})
		if err != nil {
			s.logger.Warn("channel unreachable during detection, skipping",
				zap.String("channel_id", m.ChannelID.String()),
				zap.Error(err),
			)
			continue
		}
		qty, ok := quantities[m.NativeProductRef]
		if !ok {
			continue
		}

		observations = append(observations, conflict.Observation{
			ChannelID:   m.ChannelID,
			ChannelType: string(ch.Type),
			Quantity:    qty,
			ReportedAt:  time.Now(),
			Reliability: ch.ReliabilityScore,
		})
	}
	return observations, nil
}

// pushResolvedValue writes the resolved quantity to each remote channel and
// returns the channel IDs that could not be reached
func (s *ConflictService) pushResolvedValue(ctx context.Context, c *conflict.SyncConflict) []uuid.UUID {
	var failed []uuid.UUID
	for _, o := range c.Observations {
		if o.ChannelType == LocalObservationType {
			continue
		}

		m, err := s.mappings.FindByChannelAndProduct(ctx, o.ChannelID, c.ProductID)
		if err != nil {
			s.logger.Error("no product mapping for push-back",
				zap.String("conflict_id", c.ID.String()),
				zap.String("channel_id", o.ChannelID.String()),
				zap.Error(err),
			)
			failed = append(failed, o.ChannelID)
			continue
		}

		if err := s.registry.PushInventory(ctx, o.ChannelID, m.NativeProductRef, *c.ResolvedValue); err != nil {
			s.logger.Error("push-back failed",
				zap.String("conflict_id", c.ID.String()),
				zap.String("channel_id", o.ChannelID.String()),
				zap.Error(err),
			)
			failed = append(failed, o.ChannelID)
		}
	}
	return failed
}

func (s *ConflictService) publishEvents(ctx context.Context, c *conflict.SyncConflict) {
	if s.events == nil {
		return
	}
	events := c.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.events.Publish(ctx, events...)
	c.ClearDomainEvents()
}
