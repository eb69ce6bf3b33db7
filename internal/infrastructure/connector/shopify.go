package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
)

const shopifyAPIVersion = "2024-01"

// ShopifyConnector talks to the Shopify Admin REST API. The credential's
// Endpoint is the shop domain (e.g. "my-store.myshopify.com") and the
// AccessToken is an Admin API token. Product refs are inventory item IDs.
type ShopifyConnector struct {
	httpClient *http.Client
}

// NewShopifyConnector creates a Shopify connector
func NewShopifyConnector() *ShopifyConnector {
	return &ShopifyConnector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ChannelType returns the channel type this connector handles
func (c *ShopifyConnector) ChannelType() channel.Type {
	return channel.TypeShopify
}

func (c *ShopifyConnector) baseURL(creds *channel.Credentials) string {
	domain := strings.TrimSuffix(strings.TrimPrefix(creds.Endpoint, "https://"), "/")
	return fmt.Sprintf("https://%s/admin/api/%s", domain, shopifyAPIVersion)
}

func (c *ShopifyConnector) headers(creds *channel.Credentials) map[string]string {
	return map[string]string{"X-Shopify-Access-Token": creds.AccessToken}
}

// shopifyShopResponse is the subset of GET /shop.json we care about
type shopifyShopResponse struct {
	Shop struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"shop"`
}

// shopifyInventoryLevelsResponse models GET /inventory_levels.json
type shopifyInventoryLevelsResponse struct {
	InventoryLevels []struct {
		InventoryItemID int64 `json:"inventory_item_id"`
		Available       int64 `json:"available"`
	} `json:"inventory_levels"`
}

// Authenticate verifies the access token by fetching the shop resource
func (c *ShopifyConnector) Authenticate(ctx context.Context, creds *channel.Credentials) error {
	if creds.AccessToken == "" || creds.Endpoint == "" {
		return fmt.Errorf("%w: missing access token or shop domain", channel.ErrAuthFailed)
	}

	body, err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL(creds)+"/shop.json", c.headers(creds), nil)
	if err != nil {
		return err
	}

	var resp shopifyShopResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrInvalidResponse, err)
	}
	if resp.Shop.ID == 0 {
		return fmt.Errorf("%w: empty shop payload", channel.ErrInvalidResponse)
	}
	return nil
}

// PushInventory sets the available quantity for one inventory item
func (c *ShopifyConnector) PushInventory(ctx context.Context, creds *channel.Credentials, productRef string, quantity decimal.Decimal) error {
	payload, err := json.Marshal(map[string]any{
		"inventory_item_id": productRef,
		"available":         quantity.IntPart(),
	})
	if err != nil {
		return fmt.Errorf("shopify: failed to marshal request: %w", err)
	}

	_, err = doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL(creds)+"/inventory_levels/set.json", c.headers(creds), payload)
	return err
}

// PullInventory reads available quantities for the given inventory items.
// Refs missing from the response are absent from the result map.
func (c *ShopifyConnector) PullInventory(ctx context.Context, creds *channel.Credentials, productRefs []string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/inventory_levels.json?inventory_item_ids=%s",
		c.baseURL(creds), strings.Join(productRefs, ","))

	body, err := doJSON(ctx, c.httpClient, http.MethodGet, url, c.headers(creds), nil)
	if err != nil {
		return nil, err
	}

	var resp shopifyInventoryLevelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidResponse, err)
	}

	result := make(map[string]decimal.Decimal, len(resp.InventoryLevels))
	for _, level := range resp.InventoryLevels {
		result[fmt.Sprintf("%d", level.InventoryItemID)] = decimal.NewFromInt(level.Available)
	}
	return result, nil
}

// HealthCheck probes the shop resource and reports latency
func (c *ShopifyConnector) HealthCheck(ctx context.Context, creds *channel.Credentials) (channel.HealthStatus, error) {
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

// VerifyWebhookSignature checks the X-Shopify-Hmac-Sha256 header, a
// base64-encoded HMAC-SHA256 of the raw request body
func (c *ShopifyConnector) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return verifyHMACBase64(payload, signature, secret)
}

// Ensure ShopifyConnector implements the Connector port
var _ channel.Connector = (*ShopifyConnector)(nil)
