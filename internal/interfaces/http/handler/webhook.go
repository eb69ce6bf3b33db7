package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/channelsync/backend/internal/application/sync"
	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/sync"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
)

// maxWebhookBody caps how much of a webhook delivery we will read
const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler receives inventory webhooks from external channels.
// Channel platforms do not send our store header, so the store is resolved
// from the registered callback URL's store_id query parameter instead.
type WebhookHandler struct {
	BaseHandler
	webhooks *appsync.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks *appsync.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:channelType", h.Receive)
}

// Receive ingests one webhook delivery. Acceptance (202) means a processing
// job was enqueued, not that the event has been applied.
func (h *WebhookHandler) Receive(c *gin.Context) {
	channelType := channel.Type(strings.ToUpper(c.Param("channelType")))
	if !channelType.IsValid() {
		h.BadRequest(c, "Unknown channel type")
		return
	}

	storeID, err := h.resolveStoreID(c)
	if err != nil {
		h.BadRequest(c, "A valid store_id query parameter or X-Store-ID header is required")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.BadRequest(c, "Failed to read webhook payload")
		return
	}

	result, err := h.webhooks.Ingest(c.Request.Context(), &appsync.IngestCommand{
		StoreID:       storeID,
		ChannelType:   channelType,
		Topic:         headerFirst(c, "X-Webhook-Topic", "X-Shopify-Topic", "X-Square-Event-Type", "X-Amzn-Event-Type"),
		NativeEventID: headerFirst(c, "X-Webhook-Event-Id", "X-Shopify-Webhook-Id", "X-Square-Event-Id", "X-Amzn-Notification-Id"),
		Signature:     signatureHeader(c, channelType),
		Payload:       payload,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	switch result.Outcome {
	case sync.WebhookInvalidSignature:
		h.Error(c, http.StatusUnauthorized, "ERR_SIGNATURE_INVALID", "Webhook signature verification failed")
	case sync.WebhookDuplicate:
		// Redelivery of an event we already accepted; acknowledge so the
		// channel stops retrying
		h.Success(c, result)
	default:
		h.Accepted(c, result)
	}
}

// resolveStoreID prefers the callback URL's store_id over the header
func (h *WebhookHandler) resolveStoreID(c *gin.Context) (uuid.UUID, error) {
	if raw := c.Query("store_id"); raw != "" {
		return uuid.Parse(raw)
	}
	return uuid.Parse(c.GetHeader(middleware.StoreHeaderKey))
}

// signatureHeader picks the HMAC header each platform uses
func signatureHeader(c *gin.Context, channelType channel.Type) string {
	switch channelType {
	case channel.TypeShopify:
		return c.GetHeader("X-Shopify-Hmac-Sha256")
	case channel.TypeSquare:
		return c.GetHeader("X-Square-HmacSha256-Signature")
	default:
		return c.GetHeader("X-Webhook-Signature")
	}
}

// headerFirst returns the first non-empty header among the candidates
func headerFirst(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}
