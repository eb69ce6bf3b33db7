package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/sync"
)

// Job kinds dispatched by the queue
const (
	KindSyncAll         = "sync.all_channels"
	KindSyncChannel     = "sync.single_channel"
	KindResolveConflict = "conflict.resolve"
	KindRebalance       = "allocation.rebalance"
	KindProcessWebhook  = "webhook.inventory_update"
)

// syncChannelPayload is the argument of a single-channel sync job
type syncChannelPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// resolveConflictPayload is the argument of a conflict resolution job
type resolveConflictPayload struct {
	ConflictID uuid.UUID `json:"conflict_id"`
	Strategy   string    `json:"strategy"`
}

// rebalancePayload is the argument of an allocation rebalance job
type rebalancePayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Strategy  string    `json:"strategy"`
}

// webhookJobPayload is the argument of a webhook processing job
type webhookJobPayload struct {
	ChannelID     uuid.UUID       `json:"channel_id"`
	Topic         string          `json:"topic"`
	NativeEventID string          `json:"native_event_id"`
	Body          json.RawMessage `json:"body"`
}

// inventoryEventBody is the channel-agnostic shape of an inventory webhook
type inventoryEventBody struct {
	ProductRef string          `json:"product_ref"`
	Quantity   decimal.Decimal `json:"quantity"`
}

func marshalPayload(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

// TriggerResponse acknowledges an accepted sync trigger
type TriggerResponse struct {
	JobID uuid.UUID `json:"job_id"`
	// EstimatedDuration is a rough upper bound based on channel count
	EstimatedDuration string `json:"estimated_duration,omitempty"`
}

// ChannelStatusResponse joins the channel's sync dashboard record with its
// live health signals
type ChannelStatusResponse struct {
	ChannelID         uuid.UUID            `json:"channel_id"`
	ChannelName       string               `json:"channel_name"`
	ChannelType       channel.Type         `json:"channel_type"`
	State             sync.ChannelState    `json:"state"`
	LastRunAt         *time.Time           `json:"last_run_at,omitempty"`
	LastDuration      string               `json:"last_duration,omitempty"`
	ProductsProcessed int                  `json:"products_processed"`
	ErrorCount        int                  `json:"error_count"`
	LastError         string               `json:"last_error,omitempty"`
	Breaker           channel.BreakerState `json:"breaker"`
	ReliabilityScore  decimal.Decimal      `json:"reliability_score"`
}

// CategoryDepth reports one category's queue composition
type CategoryDepth struct {
	Category sync.Category         `json:"category"`
	Counts   map[sync.Status]int64 `json:"counts"`
}

// QueueReport is the operator view of the job queue
type QueueReport struct {
	Categories []CategoryDepth `json:"categories"`
	DeadJobs   []*JobResponse  `json:"dead_jobs"`
}

// JobResponse is the API view of a job
type JobResponse struct {
	ID         uuid.UUID     `json:"id"`
	Category   sync.Category `json:"category"`
	Kind       string        `json:"kind"`
	Status     sync.Status   `json:"status"`
	Attempts   int           `json:"attempts"`
	LastError  string        `json:"last_error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

func toJobResponse(j *sync.SyncJob) *JobResponse {
	return &JobResponse{
		ID:         j.ID,
		Category:   j.Category,
		Kind:       j.Kind,
		Status:     j.Status,
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
