package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
)

const amazonNAEndpoint = "https://sellingpartnerapi-na.amazon.com"

// AmazonConnector talks to the Selling Partner API. The credential's
// AccessToken is an LWA access token, APIKey carries the seller ID and
// APISecret the marketplace ID. Product refs are seller SKUs.
type AmazonConnector struct {
	httpClient *http.Client
}

// NewAmazonConnector creates an Amazon connector
func NewAmazonConnector() *AmazonConnector {
	return &AmazonConnector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ChannelType returns the channel type this connector handles
func (c *AmazonConnector) ChannelType() channel.Type {
	return channel.TypeAmazon
}

func (c *AmazonConnector) baseURL(creds *channel.Credentials) string {
	if creds.Endpoint != "" {
		return creds.Endpoint
	}
	return amazonNAEndpoint
}

func (c *AmazonConnector) headers(creds *channel.Credentials) map[string]string {
	return map[string]string{"x-amz-access-token": creds.AccessToken}
}

// amazonInventorySummariesResponse models GET /fba/inventory/v1/summaries
type amazonInventorySummariesResponse struct {
	Payload struct {
		InventorySummaries []struct {
			SellerSku       string `json:"sellerSku"`
			TotalQuantity   int64  `json:"totalQuantity"`
			InventoryDetail struct {
				FulfillableQuantity int64 `json:"fulfillableQuantity"`
			} `json:"inventoryDetails"`
		} `json:"inventorySummaries"`
	} `json:"payload"`
}

// Authenticate verifies the token against the marketplace participation
// endpoint
func (c *AmazonConnector) Authenticate(ctx context.Context, creds *channel.Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", channel.ErrAuthFailed)
	}
	_, err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL(creds)+"/sellers/v1/marketplaceParticipations", c.headers(creds), nil)
	return err
}

// PushInventory patches the listing's fulfillment availability for one SKU
func (c *AmazonConnector) PushInventory(ctx context.Context, creds *channel.Credentials, productRef string, quantity decimal.Decimal) error {
	payload, err := json.Marshal(map[string]any{
		"productType": "PRODUCT",
		"patches": []map[string]any{
			{
				"op":   "replace",
				"path": "/attributes/fulfillment_availability",
				"value": []map[string]any{
					{
						"fulfillment_channel_code": "DEFAULT",
						"quantity":                 quantity.IntPart(),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("amazon: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/listings/2021-08-01/items/%s/%s?marketplaceIds=%s",
		c.baseURL(creds), url.PathEscape(creds.APIKey), url.PathEscape(productRef), url.QueryEscape(creds.APISecret))
	_, err = doJSON(ctx, c.httpClient, http.MethodPatch, endpoint, c.headers(creds), payload)
	return err
}

// PullInventory reads fulfillable quantities for the given seller SKUs
func (c *AmazonConnector) PullInventory(ctx context.Context, creds *channel.Credentials, productRefs []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("granularityType", "Marketplace")
	q.Set("granularityId", creds.APISecret)
	q.Set("details", "true")
	for _, ref := range productRefs {
		q.Add("sellerSkus", ref)
	}

	endpoint := fmt.Sprintf("%s/fba/inventory/v1/summaries?%s", c.baseURL(creds), q.Encode())
	body, err := doJSON(ctx, c.httpClient, http.MethodGet, endpoint, c.headers(creds), nil)
	if err != nil {
		return nil, err
	}

	var resp amazonInventorySummariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidResponse, err)
	}

	result := make(map[string]decimal.Decimal, len(resp.Payload.InventorySummaries))
	for _, summary := range resp.Payload.InventorySummaries {
		result[summary.SellerSku] = decimal.NewFromInt(summary.InventoryDetail.FulfillableQuantity)
	}
	return result, nil
}

// HealthCheck probes marketplace participation and reports latency
func (c *AmazonConnector) HealthCheck(ctx context.Context, creds *channel.Credentials) (channel.HealthStatus, error) {
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

// VerifyWebhookSignature checks a hex-encoded HMAC-SHA256 of the raw
// notification body
func (c *AmazonConnector) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return verifyHMACHex(payload, signature, secret)
}

// Ensure AmazonConnector implements the Connector port
var _ channel.Connector = (*AmazonConnector)(nil)
