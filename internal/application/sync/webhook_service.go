package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

// defaultDedupeTTL bounds webhook dedupe retention when config omits it
const defaultDedupeTTL = 72 * time.Hour

// JobEnqueuer persists a job for the queue's workers to claim
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *sync.SyncJob) error
}

// WebhookMetricsRecorder counts delivery dispositions. Implemented by
// telemetry.SyncMetrics.
type WebhookMetricsRecorder interface {
	RecordWebhook(ctx context.Context, channelType channel.Type, outcome sync.WebhookOutcome)
}

// IngestCommand is one received webhook delivery
type IngestCommand struct {
	StoreID       uuid.UUID
	ChannelType   channel.Type
	Topic         string
	NativeEventID string
	Signature     string
	Payload       []byte
}

// IngestResult reports how the delivery was disposed of
type IngestResult struct {
	Outcome  sync.WebhookOutcome `json:"outcome"`
	RecordID uuid.UUID           `json:"record_id"`
	JobID    *uuid.UUID          `json:"job_id,omitempty"`
}

// WebhookService ingests channel webhooks: verify the signature, drop
// redeliveries through the idempotency store, audit every delivery and
// enqueue a processing job for fresh events. Acceptance means a job exists,
// not that the event was applied.
type WebhookService struct {
	channels channel.Repository
	records  sync.WebhookRecordRepository
	registry channel.Registry
	dedupe   shared.IdempotencyStore
	enqueuer JobEnqueuer
	ttl      time.Duration
	metrics  WebhookMetricsRecorder
	logger   *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	channels channel.Repository,
	records sync.WebhookRecordRepository,
	registry channel.Registry,
	dedupe shared.IdempotencyStore,
	enqueuer JobEnqueuer,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.WebhookDedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &WebhookService{
		channels: channels,
		records:  records,
		registry: registry,
		dedupe:   dedupe,
		enqueuer: enqueuer,
		ttl:      ttl,
		logger:   logger,
	}
}

// SetMetrics sets the disposition recorder. Without one deliveries are not
// counted.
func (s *WebhookService) SetMetrics(metrics WebhookMetricsRecorder) {
	s.metrics = metrics
}

func (s *WebhookService) countOutcome(ctx context.Context, channelType channel.Type, outcome sync.WebhookOutcome) {
	if s.metrics != nil {
		s.metrics.RecordWebhook(ctx, channelType, outcome)
	}
}

// Ingest processes one webhook delivery end to end
func (s *WebhookService) Ingest(ctx context.Context, cmd *IngestCommand) (*IngestResult, error) {
	if cmd.Topic == "" || cmd.NativeEventID == "" {
		return nil, fmt.Errorf("%w: webhook topic and event id are required", shared.ErrInvalidInput)
	}
	if !json.Valid(cmd.Payload) {
		return nil, fmt.Errorf("%w: webhook payload is not valid JSON", shared.ErrInvalidInput)
	}

	ch, err := s.channels.FindByStoreAndType(ctx, cmd.StoreID, cmd.ChannelType)
	if err != nil {
		return nil, err
	}

	valid, err := s.registry.VerifyWebhookSignature(ctx, ch.ID, cmd.Payload, cmd.Signature)
	if err != nil {
		return nil, err
	}
	if !valid {
		s.logger.Warn("webhook signature rejected",
			zap.String("channel_id", ch.ID.String()),
			zap.String("topic", cmd.Topic),
			zap.String("native_event_id", cmd.NativeEventID),
		)
		record := sync.NewWebhookRecord(cmd.StoreID, ch.ID, cmd.Topic, cmd.NativeEventID, sync.WebhookInvalidSignature)
		if err := s.records.Save(ctx, record); err != nil {
			return nil, err
		}
		s.countOutcome(ctx, ch.Type, sync.WebhookInvalidSignature)
		return &IngestResult{Outcome: sync.WebhookInvalidSignature, RecordID: record.ID}, nil
	}

	fresh, err := s.dedupe.MarkProcessed(ctx, sync.DedupeKey(ch.ID, cmd.NativeEventID, cmd.Topic), s.ttl)
	if err != nil {
		return nil, err
	}
	if !fresh {
		record := sync.NewWebhookRecord(cmd.StoreID, ch.ID, cmd.Topic, cmd.NativeEventID, sync.WebhookDuplicate)
		record.Detail = "redelivery of an already-accepted event"
		if err := s.records.Save(ctx, record); err != nil {
			return nil, err
		}
		s.countOutcome(ctx, ch.Type, sync.WebhookDuplicate)
		return &IngestResult{Outcome: sync.WebhookDuplicate, RecordID: record.ID}, nil
	}

	job := sync.NewSyncJob(cmd.StoreID, sync.CategoryWebhook, KindProcessWebhook,
		marshalPayload(webhookJobPayload{
			ChannelID:     ch.ID,
			Topic:         cmd.Topic,
			NativeEventID: cmd.NativeEventID,
			Body:          json.RawMessage(cmd.Payload),
		}))
	channelRef := ch.ID
	job.ChannelID = &channelRef
	if err := s.enqueuer.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	record := sync.NewWebhookRecord(cmd.StoreID, ch.ID, cmd.Topic, cmd.NativeEventID, sync.WebhookAccepted)
	record.AttachJob(job.ID)
	if err := s.records.Save(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("webhook accepted",
		zap.String("channel_id", ch.ID.String()),
		zap.String("topic", cmd.Topic),
		zap.String("job_id", job.ID.String()),
	)
	s.countOutcome(ctx, ch.Type, sync.WebhookAccepted)
	jobID := job.ID
	return &IngestResult{Outcome: sync.WebhookAccepted, RecordID: record.ID, JobID: &jobID}, nil
}
