package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/channel"
)

// GenericRESTConnector integrates self-hosted storefronts over a small
// REST convention:
//
//	GET    {endpoint}/health
//	GET    {endpoint}/inventory?refs=a,b,c
//	PUT    {endpoint}/inventory/{ref}
//
// Authentication is a bearer token; webhook signatures are GitHub-style
// "sha256=<hex>" HMAC digests of the raw body.
type GenericRESTConnector struct {
	httpClient *http.Client
}

// NewGenericRESTConnector creates a generic REST connector
func NewGenericRESTConnector() *GenericRESTConnector {
	return &GenericRESTConnector{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ChannelType returns the channel type this connector handles
func (c *GenericRESTConnector) ChannelType() channel.Type {
	return channel.TypeGenericREST
}

func (c *GenericRESTConnector) headers(creds *channel.Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + creds.AccessToken}
}

// genericInventoryResponse models GET {endpoint}/inventory
type genericInventoryResponse struct {
	Items []struct {
		Ref      string          `json:"ref"`
		Quantity decimal.Decimal `json:"quantity"`
	} `json:"items"`
}

// Authenticate verifies the endpoint accepts the bearer token
func (c *GenericRESTConnector) Authenticate(ctx context.Context, creds *channel.Credentials) error {
	if creds.Endpoint == "" {
		return fmt.Errorf("%w: missing endpoint", channel.ErrAuthFailed)
	}
	_, err := doJSON(ctx, c.httpClient, http.MethodGet, strings.TrimSuffix(creds.Endpoint, "/")+"/health", c.headers(creds), nil)
	return err
}

// PushInventory replaces the quantity for one product ref
func (c *GenericRESTConnector) PushInventory(ctx context.Context, creds *channel.Credentials, productRef string, quantity decimal.Decimal) error {
	payload, err := json.Marshal(map[string]any{"quantity": quantity})
	if err != nil {
		return fmt.Errorf("generic_rest: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/inventory/%s", strings.TrimSuffix(creds.Endpoint, "/"), url.PathEscape(productRef))
	_, err = doJSON(ctx, c.httpClient, http.MethodPut, endpoint, c.headers(creds), payload)
	return err
}

// PullInventory reads quantities for the given product refs
func (c *GenericRESTConnector) PullInventory(ctx context.Context, creds *channel.Credentials, productRefs []string) (map[string]decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/inventory?refs=%s",
		strings.TrimSuffix(creds.Endpoint, "/"), url.QueryEscape(strings.Join(productRefs, ",")))

	body, err := doJSON(ctx, c.httpClient, http.MethodGet, endpoint, c.headers(creds), nil)
	if err != nil {
		return nil, err
	}

	var resp genericInventoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidResponse, err)
	}

	result := make(map[string]decimal.Decimal, len(resp.Items))
	for _, item := range resp.Items {
		result[item.Ref] = item.Quantity
	}
	return result, nil
}

// HealthCheck probes the endpoint's health route and reports latency
func (c *GenericRESTConnector) HealthCheck(ctx context.Context, creds *channel.Credentials) (channel.HealthStatus, error) {
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

// VerifyWebhookSignature checks a "sha256=<hex>" HMAC-SHA256 digest of the
// raw request body
func (c *GenericRESTConnector) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	digest := strings.TrimPrefix(signature, "sha256=")
	if digest == signature {
		// Prefix is part of the convention; reject unprefixed headers
		return false
	}
	return verifyHMACHex(payload, digest, secret)
}

// Ensure GenericRESTConnector implements the Connector port
var _ channel.Connector = (*GenericRESTConnector)(nil)
