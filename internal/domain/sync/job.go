package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/shared"
)

var (
	ErrJobNotFound        = errors.New("sync: job not found")
	ErrInvalidTransition  = errors.New("sync: invalid job status transition")
	ErrJobAlreadyFinished = errors.New("sync: job already finished")
)

// Category partitions jobs into independently-drained queues so a burst in
// one kind of work cannot starve the others
type Category string

const (
	CategorySync       Category = "sync"
	CategoryAllocation Category = "allocation"
	CategoryConflict   Category = "conflict"
	CategoryWebhook    Category = "webhook"
)

// Status is a job's position in its lifecycle
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	// StatusPartial marks a fan-out parent whose children split between
	// success and failure
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
	// StatusDead marks a job that exhausted its retries; it stays visible
	// for operators and can be requeued manually
	StatusDead Status = "DEAD"
)

// Retry policy for transient failures
const (
	DefaultMaxAttempts  = 4
	retryBackoffBase    = 500 * time.Millisecond
	retryBackoffCeiling = 1 * time.Minute
)

// SyncJob is one unit of durable background work
type SyncJob struct {
	shared.StoreAggregateRoot

	Category Category
	// Kind names the operation the worker dispatches on, e.g. "channel.push"
	Kind      string
	Status    Status
	ChannelID *uuid.UUID
	ProductID *uuid.UUID
	// ParentID links fan-out children back to their coordinating job
	ParentID *uuid.UUID
	// Payload is the operation's JSON-encoded arguments
	Payload     string
	Attempts    int
	MaxAttempts int
	// NextRunAt gates when the queue may claim the job again after a retry
	NextRunAt  time.Time
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewSyncJob creates a queued job ready to be claimed
func NewSyncJob(storeID uuid.UUID, category Category, kind, payload string) *SyncJob {
	return &SyncJob{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		Category:           category,
		Kind:               kind,
		Status:             StatusQueued,
		Payload:            payload,
		MaxAttempts:        DefaultMaxAttempts,
		NextRunAt:          time.Now(),
	}
}

// NewChildJob creates a queued job linked to a fan-out parent
func NewChildJob(parent *SyncJob, kind, payload string) *SyncJob {
	child := NewSyncJob(parent.StoreID, parent.Category, kind, payload)
	parentID := parent.ID
	child.ParentID = &parentID
	return child
}

// IsTerminal reports whether the job can no longer change status
// (DEAD excepted: operators may requeue it)
func (j *SyncJob) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusPartial, StatusFailed, StatusDead:
		return true
	}
	return false
}

// Start moves a claimed job into RUNNING and counts the attempt
func (j *SyncJob) Start() error {
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	now := time.Now()
	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Complete finishes the job successfully
func (j *SyncJob) Complete() error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	now := time.Now()
	j.Status = StatusCompleted
	j.FinishedAt = &now
	j.LastError = ""
	j.UpdatedAt = now
	return nil
}

// Fail records a failed attempt. Retryable failures requeue the job with
// exponential backoff until MaxAttempts is exhausted; the job then goes
// DEAD. Non-retryable failures go DEAD immediately.
func (j *SyncJob) Fail(cause error, retryable bool) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.Status)
	}
	now := time.Now()
	j.UpdatedAt = now
	if cause != nil {
		j.LastError = cause.Error()
	}

	if !retryable || j.Attempts >= j.MaxAttempts {
		j.Status = StatusDead
		j.FinishedAt = &now
		return nil
	}

	j.Status = StatusQueued
	j.NextRunAt = now.Add(backoffFor(j.Attempts))
	return nil
}

// MarkPartial finishes a fan-out parent whose children split between
// success and failure
func (j *SyncJob) MarkPartial() error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusPartial)
	}
	now := time.Now()
	j.Status = StatusPartial
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed finishes a fan-out parent whose children all failed
func (j *SyncJob) MarkFailed(reason string) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	now := time.Now()
	j.Status = StatusFailed
	j.LastError = reason
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// Requeue puts a DEAD job back in the queue with a fresh retry budget
func (j *SyncJob) Requeue() error {
	if j.Status != StatusDead {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusQueued)
	}
	j.Status = StatusQueued
	j.Attempts = 0
	j.NextRunAt = time.Now()
	j.FinishedAt = nil
	j.Touch()
	return nil
}

// ResolveFanOut computes the parent's terminal status from its children's
// terminal statuses: all succeeded -> COMPLETED, all failed -> FAILED,
// mixed -> PARTIAL
func ResolveFanOut(children []Status) (Status, error) {
	if len(children) == 0 {
		return StatusCompleted, nil
	}
	succeeded, failed := 0, 0
	for _, s := range children {
		switch s {
		case StatusCompleted:
			succeeded++
		case StatusFailed, StatusDead:
			failed++
		default:
			return "", fmt.Errorf("%w: child still %s", ErrInvalidTransition, s)
		}
	}
	switch {
	case failed == 0:
		return StatusCompleted, nil
	case succeeded == 0:
		return StatusFailed, nil
	default:
		return StatusPartial, nil
	}
}

// backoffFor doubles the delay per attempt, capped at the ceiling
func backoffFor(attempt int) time.Duration {
	d := retryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= retryBackoffCeiling {
			return retryBackoffCeiling
		}
	}
	return d
}
