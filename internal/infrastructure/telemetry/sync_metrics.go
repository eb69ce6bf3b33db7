package telemetry

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/sync"
)

// ErrMeterNil is returned when SyncMetrics is built without a meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// defaultCollectInterval paces the queue depth sampler
const defaultCollectInterval = 30 * time.Second

// QueueStatsProvider reports per-status job counts for one category. The
// durable queue implements it.
type QueueStatsProvider interface {
	Stats(ctx context.Context, category sync.Category) (map[sync.Status]int64, error)
}

// SyncMetricsConfig configures SyncMetrics
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	Queue           QueueStatsProvider
	CollectInterval time.Duration
}

// SyncMetrics is the instrument set for the sync engine: job outcomes and
// durations from the queue, call outcomes and breaker transitions from the
// channel registry, webhook dispositions from ingestion, and a sampled
// queue depth gauge.
type SyncMetrics struct {
	jobsProcessed      *Counter
	jobDuration        *Histogram
	channelCalls       *Counter
	breakerTransitions *Counter
	webhooksReceived   *Counter
	queueDepth         *Gauge

	queue           QueueStatsProvider
	collectInterval time.Duration
	logger          *zap.Logger

	stopChan chan struct{}
	stopOnce gosync.Once
}

// NewSyncMetrics registers the sync engine's instruments on the meter
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = defaultCollectInterval
	}

	m := &SyncMetrics{
		queue:           cfg.Queue,
		collectInterval: interval,
		logger:          logger,
		stopChan:        make(chan struct{}),
	}

	var err error
	if m.jobsProcessed, err = NewCounter(cfg.Meter,
		"channelsync.jobs.processed",
		"Jobs finished by the queue workers, by category and terminal status",
		"{job}"); err != nil {
		return nil, err
	}
	if m.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "channelsync.job.duration",
		Description: "Handler execution time per job attempt",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.channelCalls, err = NewCounter(cfg.Meter,
		"channelsync.channel.calls",
		"Guarded connector calls, by channel type and outcome",
		"{call}"); err != nil {
		return nil, err
	}
	if m.breakerTransitions, err = NewCounter(cfg.Meter,
		"channelsync.breaker.transitions",
		"Circuit breaker state changes",
		"{transition}"); err != nil {
		return nil, err
	}
	if m.webhooksReceived, err = NewCounter(cfg.Meter,
		"channelsync.webhooks.received",
		"Webhook deliveries, by channel type and disposition",
		"{delivery}"); err != nil {
		return nil, err
	}
	if m.queueDepth, err = NewGauge(cfg.Meter,
		"channelsync.queue.depth",
		"Jobs in the durable queue, by category and status",
		"{job}"); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordJobOutcome counts one finished job attempt and its handler duration
func (m *SyncMetrics) RecordJobOutcome(ctx context.Context, category sync.Category, kind string, status sync.Status, elapsed time.Duration) {
	m.jobsProcessed.Inc(ctx,
		AttrJobCategory.String(string(category)),
		AttrJobStatus.String(string(status)),
	)
	m.jobDuration.RecordDuration(ctx, elapsed,
		AttrJobCategory.String(string(category)),
		AttrJobKind.String(kind),
	)
}

// RecordChannelCall counts one guarded connector call
func (m *SyncMetrics) RecordChannelCall(ctx context.Context, channelType channel.Type, callErr error) {
	outcome := "success"
	if callErr != nil {
		outcome = "error"
	}
	m.channelCalls.Inc(ctx,
		AttrChannelType.String(channelType.String()),
		AttrOutcome.String(outcome),
	)
}

// RecordBreakerTransition counts one breaker state change
func (m *SyncMetrics) RecordBreakerTransition(ctx context.Context, channelID uuid.UUID, state channel.BreakerState) {
	m.breakerTransitions.Inc(ctx,
		AttrChannelID.String(channelID.String()),
		AttrBreakerState.String(string(state)),
	)
}

// RecordWebhook counts one webhook delivery disposition
func (m *SyncMetrics) RecordWebhook(ctx context.Context, channelType channel.Type, outcome sync.WebhookOutcome) {
	m.webhooksReceived.Inc(ctx,
		AttrChannelType.String(channelType.String()),
		AttrOutcome.String(string(outcome)),
	)
}

// StartCollection launches the queue depth sampler. No-op without a queue
// provider.
func (m *SyncMetrics) StartCollection(ctx context.Context) {
	if m.queue == nil {
		return
	}
	go m.collectLoop(ctx)
}

// Stop halts the queue depth sampler. Safe to call more than once.
func (m *SyncMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *SyncMetrics) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(m.collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.collectQueueDepth(ctx)
		}
	}
}

func (m *SyncMetrics) collectQueueDepth(ctx context.Context) {
	categories := []sync.Category{
		sync.CategorySync,
		sync.CategoryAllocation,
		sync.CategoryConflict,
		sync.CategoryWebhook,
	}
	for _, category := range categories {
		counts, err := m.queue.Stats(ctx, category)
		if err != nil {
			m.logger.Warn("queue depth collection failed",
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		for status, count := range counts {
			m.queueDepth.Record(ctx, count,
				AttrJobCategory.String(string(category)),
				AttrJobStatus.String(string(status)),
			)
		}
	}
}
