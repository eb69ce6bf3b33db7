package sync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/shared"
)

var ErrWebhookNotFound = errors.New("sync: webhook record not found")

// WebhookOutcome is the terminal disposition of a received webhook
type WebhookOutcome string

const (
	WebhookAccepted         WebhookOutcome = "ACCEPTED"
	WebhookDuplicate        WebhookOutcome = "DUPLICATE"
	WebhookInvalidSignature WebhookOutcome = "INVALID_SIGNATURE"
	WebhookRejected         WebhookOutcome = "REJECTED"
)

// WebhookRecord is the audit trail for one received channel webhook.
// Acceptance means a job was enqueued, not that the event was applied.
type WebhookRecord struct {
	shared.StoreAggregateRoot

	ChannelID uuid.UUID
	Topic     string
	// NativeEventID is the channel's own event identifier, used for dedupe
	NativeEventID string
	Outcome       WebhookOutcome
	// JobID is set when the webhook was accepted and a job enqueued
	JobID  *uuid.UUID
	Detail string
}

// NewWebhookRecord creates an audit record for a received webhook
func NewWebhookRecord(storeID, channelID uuid.UUID, topic, nativeEventID string, outcome WebhookOutcome) *WebhookRecord {
	return &WebhookRecord{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		ChannelID:          channelID,
		Topic:              topic,
		NativeEventID:      nativeEventID,
		Outcome:            outcome,
	}
}

// AttachJob links the record to the job the webhook produced
func (w *WebhookRecord) AttachJob(jobID uuid.UUID) {
	w.JobID = &jobID
}

// DedupeKey identifies one logical channel event regardless of redelivery.
// Two deliveries with the same channel, native event ID and topic are the
// same event.
func DedupeKey(channelID uuid.UUID, nativeEventID, topic string) string {
	return fmt.Sprintf("webhook:%s:%s:%s", channelID, nativeEventID, topic)
}
