package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
)

const squareProductionURL = "https://connect.squareup.com"

// SquareConnector talks to the Square inventory API. The credential's
// AccessToken is an OAuth bearer token; Endpoint overrides the API base
// URL for sandbox use. Product refs are catalog object IDs; APIKey carries
// the location ID counts are tracked against.
type SquareConnector struct {
	httpClient *http.Client
}

// NewSquareConnector creates a Square connector
func NewSquareConnector() *SquareConnector {
	return &SquareConnector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ChannelType returns the channel type this connector handles
func (c *SquareConnector) ChannelType() channel.Type {
	return channel.TypeSquare
}

func (c *SquareConnector) baseURL(creds *channel.Credentials) string {
	if creds.Endpoint != "" {
		return creds.Endpoint
	}
	return squareProductionURL
}

func (c *SquareConnector) headers(creds *channel.Credentials) map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + creds.AccessToken,
		"Square-Version": "2024-01-18",
	}
}

// squareCountsResponse models POST /v2/inventory/counts/batch-retrieve
type squareCountsResponse struct {
	Counts []struct {
		CatalogObjectID string `json:"catalog_object_id"`
		State           string `json:"state"`
		Quantity        string `json:"quantity"`
	} `json:"counts"`
}

// Authenticate verifies the token by listing locations
func (c *SquareConnector) Authenticate(ctx context.Context, creds *channel.Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", channel.ErrAuthFailed)
	}
	_, err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL(creds)+"/v2/locations", c.headers(creds), nil)
	return err
}

// PushInventory records a physical count for one catalog object, which
// replaces Square's tracked quantity at the location
func (c *SquareConnector) PushInventory(ctx context.Context, creds *channel.Credentials, productRef string, quantity decimal.Decimal) error {
	payload, err := json.Marshal(map[string]any{
		// idempotency_key makes Square ignore redelivered batches
		"idempotency_key": uuid.NewString(),
		"changes": []map[string]any{
			{
				"type": "PHYSICAL_COUNT",
				"physical_count": map[string]any{
					"catalog_object_id": productRef,
					"location_id":       creds.APIKey,
					"state":             "IN_STOCK",
					"quantity":          quantity.Round(0).String(),
					"occurred_at":       time.Now().UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("square: failed to marshal request: %w", err)
	}

	_, err = doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL(creds)+"/v2/inventory/changes/batch-create", c.headers(creds), payload)
	return err
}

// PullInventory retrieves IN_STOCK counts for the given catalog objects
func (c *SquareConnector) PullInventory(ctx context.Context, creds *channel.Credentials, productRefs []string) (map[string]decimal.Decimal, error) {
	payload, err := json.Marshal(map[string]any{
		"catalog_object_ids": productRefs,
		"states":             []string{"IN_STOCK"},
	})
	if err != nil {
		return nil, fmt.Errorf("square: failed to marshal request: %w", err)
	}

	body, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL(creds)+"/v2/inventory/counts/batch-retrieve", c.headers(creds), payload)
	if err != nil {
		return nil, err
	}

	var resp squareCountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidResponse, err)
	}

	result := make(map[string]decimal.Decimal, len(resp.Counts))
	for _, count := range resp.Counts {
		if count.State != "IN_STOCK" {
			continue
		}
		qty, err := decimal.NewFromString(count.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: bad quantity %q", channel.ErrInvalidResponse, count.Quantity)
		}
		result[count.CatalogObjectID] = qty
	}
	return result, nil
}

// HealthCheck probes the locations endpoint and reports latency
func (c *SquareConnector) HealthCheck(ctx context.Context, creds *channel.Credentials) (channel.HealthStatus, error) {
	start := time.Now()
	err := c.Authenticate(ctx, creds)
	status := channel.HealthStatus{
		Healthy:   err == nil,
		CheckedAt: time.Now(),
		Latency:   time.Since(start),
	}
	if err != nil {
		status.Detail = err.Error()
	}
	return status, err
}

// VerifyWebhookSignature checks the x-square-hmacsha256-signature header,
// a base64-encoded HMAC-SHA256 of the raw request body
func (c *SquareConnector) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return verifyHMACBase64(payload, signature, secret)
}

// Ensure SquareConnector implements the Connector port
var _ channel.Connector = (*SquareConnector)(nil)
