package queue

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

var (
	// ErrQueueNotRunning is returned when enqueueing against a stopped queue
	ErrQueueNotRunning = errors.New("queue: queue is not running")
	// ErrNoHandler is returned when a claimed job's kind has no registered handler
	ErrNoHandler = errors.New("queue: no handler registered for job kind")
	// ErrFanOutPending is returned by fan-out handlers to keep the parent
	// RUNNING until its children report back
	ErrFanOutPending = errors.New("queue: fan-out children pending")
)

// HandlerFunc processes one claimed job. Returning an error fails the
// attempt; the queue decides between retry and dead-letter from the error.
type HandlerFunc func(ctx context.Context, job *sync.SyncJob) error

// MetricsRecorder receives per-attempt job outcomes. Implemented by
// telemetry.SyncMetrics.
type MetricsRecorder interface {
	RecordJobOutcome(ctx context.Context, category sync.Category, kind string, status sync.Status, elapsed time.Duration)
}

// Queue drains the durable job table with one worker pool per category.
// Claims go through the repository's atomic ClaimNext, so multiple queue
// instances can run against the same database.
type Queue struct {
	jobs    sync.JobRepository
	cfg     config.QueueConfig
	logger  *zap.Logger
	metrics MetricsRecorder

	mu        gosync.Mutex
	handlers  map[string]HandlerFunc
	cancel    context.CancelFunc
	wg        gosync.WaitGroup
	isRunning bool
}

// NewQueue creates a queue with no handlers registered
func NewQueue(jobs sync.JobRepository, cfg config.QueueConfig, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// SetMetrics sets the outcome recorder. Without one outcomes are not counted.
func (q *Queue) SetMetrics(metrics MetricsRecorder) {
	q.metrics = metrics
}

// RegisterHandler binds a job kind to its handler, replacing any previous one
func (q *Queue) RegisterHandler(kind string, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// Enqueue persists a job so a worker can claim it
func (q *Queue) Enqueue(ctx context.Context, job *sync.SyncJob) error {
	return q.jobs.Save(ctx, job)
}

// Start launches the per-category worker pools
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = true
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	pools := []struct {
		category sync.Category
		workers  int
	}{
		{sync.CategorySync, q.cfg.SyncWorkers},
		{sync.CategoryAllocation, q.cfg.AllocationWorkers},
		{sync.CategoryConflict, q.cfg.ConflictWorkers},
		{sync.CategoryWebhook, q.cfg.WebhookWorkers},
	}

	total := 0
	for _, pool := range pools {
		for i := 0; i < pool.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, pool.category, i)
			total++
		}
	}

	q.logger.Info("Job queue started",
		zap.Int("workers", total),
		zap.Duration("poll_interval", q.cfg.PollInterval),
		zap.Duration("job_timeout", q.cfg.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the queue, waiting for in-flight jobs
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Job queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Job queue stop timed out")
		return ctx.Err()
	}
}

// Stats reports per-status job counts for one category
func (q *Queue) Stats(ctx context.Context, category sync.Category) (map[sync.Status]int64, error) {
	return q.jobs.CountByStatus(ctx, category)
}

// worker polls for claimable jobs of one category
func (q *Queue) worker(ctx context.Context, category sync.Category, workerID int) {
	defer q.wg.Done()

	q.logger.Debug("Queue worker started",
		zap.String("category", string(category)),
		zap.Int("worker_id", workerID))

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("Queue worker stopping",
				zap.String("category", string(category)),
				zap.Int("worker_id", workerID))
			return
		case <-ticker.C:
			// Drain until the category is empty, then go back to polling
			for {
				job, err := q.jobs.ClaimNext(ctx, category, time.Now())
				if err != nil {
					if ctx.Err() == nil {
						q.logger.Error("Failed to claim job",
							zap.String("category", string(category)),
							zap.Error(err))
					}
					break
				}
				if job == nil {
					break
				}
				q.processJob(ctx, job, workerID)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processJob dispatches one claimed job to its handler and records the outcome
func (q *Queue) processJob(ctx context.Context, job *sync.SyncJob, workerID int) {
	q.mu.Lock()
	handler, ok := q.handlers[job.Kind]
	q.mu.Unlock()

	q.logger.Info("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("category", string(job.Category)),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts))

	started := time.Now()
	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	} else {
		jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
		handlerErr = handler(jobCtx, job)
		cancel()
	}
	elapsed := time.Since(started)

	switch {
	case handlerErr == nil:
		if err := job.Complete(); err != nil {
			q.logger.Error("Failed to complete job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	case errors.Is(handlerErr, ErrFanOutPending):
		// Parent stays RUNNING; the last finishing child rolls it up
	default:
		retryable := isRetryable(handlerErr)
		if err := job.Fail(handlerErr, retryable); err != nil {
			q.logger.Error("Failed to fail job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		q.logger.Warn("Job attempt failed",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", job.Kind),
			zap.String("status", string(job.Status)),
			zap.Bool("retryable", retryable),
			zap.Error(handlerErr))
	}

	if err := q.jobs.Save(ctx, job); err != nil {
		q.logger.Error("Failed to persist job outcome",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}

	// Fan-out parents are counted when their children roll them up
	if q.metrics != nil && !errors.Is(handlerErr, ErrFanOutPending) {
		q.metrics.RecordJobOutcome(ctx, job.Category, job.Kind, job.Status, elapsed)
	}

	// Terminal children roll their parent up; a fan-out parent checks its
	// children in case they all finished before it was saved
	if job.IsTerminal() && job.ParentID != nil {
		q.rollUpParent(ctx, *job.ParentID)
	}
	if errors.Is(handlerErr, ErrFanOutPending) {
		q.rollUpParent(ctx, job.ID)
	}
}

// rollUpParent finishes a fan-out parent once every child reached a
// terminal status
func (q *Queue) rollUpParent(ctx context.Context, parentID uuid.UUID) {
	parent, err := q.jobs.FindByID(ctx, parentID)
	if err != nil {
		q.logger.Error("Failed to load fan-out parent",
			zap.String("parent_id", parentID.String()),
			zap.Error(err))
		return
	}
	if parent.Status != sync.StatusRunning {
		return
	}

	children, err := q.jobs.FindChildren(ctx, parentID)
	if err != nil {
		q.logger.Error("Failed to load fan-out children",
			zap.String("parent_id", parentID.String()),
			zap.Error(err))
		return
	}
	if len(children) == 0 {
		return
	}

	statuses := make([]sync.Status, 0, len(children))
	for _, child := range children {
		statuses = append(statuses, child.Status)
	}

	resolved, err := sync.ResolveFanOut(statuses)
	if err != nil {
		// A child is still in flight
		return
	}

	switch resolved {
	case sync.StatusCompleted:
		err = parent.Complete()
	case sync.StatusPartial:
		err = parent.MarkPartial()
	case sync.StatusFailed:
		err = parent.MarkFailed("all child jobs failed")
	}
	if err != nil {
		q.logger.Error("Failed to finish fan-out parent",
			zap.String("parent_id", parentID.String()),
			zap.Error(err))
		return
	}

	if err := q.jobs.Save(ctx, parent); err != nil {
		q.logger.Error("Failed to persist fan-out parent",
			zap.String("parent_id", parentID.String()),
			zap.Error(err))
		return
	}

	q.logger.Info("Fan-out parent finished",
		zap.String("parent_id", parentID.String()),
		zap.String("status", string(parent.Status)),
		zap.Int("children", len(children)))
}

// isRetryable classifies handler errors. Transient channel errors and lost
// optimistic-lock races are retried; everything else dead-letters.
func isRetryable(err error) bool {
	if channel.IsRetryable(err) {
		return true
	}
	if errors.Is(err, channel.ErrBreakerOpen) {
		return true
	}
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
