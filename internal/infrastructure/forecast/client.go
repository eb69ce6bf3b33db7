package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

// ErrForecastUnavailable is returned when the service cannot produce a
// forecast
var ErrForecastUnavailable = errors.New("forecast: forecast service unavailable")

const maxResponseSize = 4 << 20

// Wire shapes of the forecast sidecar. Sales history goes out with the
// Prophet-style "ds"/"y" keys the sidecar expects; responses are converted
// into the domain's forecast types before they leave this package.
type salesPointRequest struct {
	Date     string          `json:"ds"`
	Quantity decimal.Decimal `json:"y"`
}

type forecastPointResponse struct {
	Date            string  `json:"date"`
	PredictedDemand float64 `json:"predicted_demand"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
}

type forecastResponse struct {
	ProductID       string                  `json:"product_id"`
	Forecasts       []forecastPointResponse `json:"forecasts"`
	ConfidenceLevel string                  `json:"confidence_level"`
	GeneratedAt     string                  `json:"generated_at"`
}

func toSalesPayload(history []allocation.SalesPoint) []salesPointRequest {
	out := make([]salesPointRequest, 0, len(history))
	for _, p := range history {
		out = append(out, salesPointRequest{Date: p.Date, Quantity: p.Quantity})
	}
	return out
}

func (r *forecastResponse) toDomain(productID uuid.UUID) *allocation.DemandForecast {
	points := make([]allocation.ForecastPoint, 0, len(r.Forecasts))
	for _, p := range r.Forecasts {
		points = append(points, allocation.ForecastPoint{
			Date:            p.Date,
			PredictedDemand: decimal.NewFromFloat(p.PredictedDemand),
			LowerBound:      decimal.NewFromFloat(p.LowerBound),
			UpperBound:      decimal.NewFromFloat(p.UpperBound),
		})
	}
	return &allocation.DemandForecast{
		ProductID:       productID,
		Points:          points,
		ConfidenceLevel: r.ConfidenceLevel,
	}
}

// Client calls the demand forecast sidecar. Responses are cached in Redis
// per product so repeated allocation runs within the cache window do not
// re-fit the model.
type Client struct {
	cfg        config.ForecastConfig
	httpClient *http.Client
	redis      *redis.Client
	logger     *zap.Logger
}

// NewClient creates a forecast client. The Redis client is optional; without
// it every call hits the service.
func NewClient(cfg config.ForecastConfig, redisClient *redis.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		redis:      redisClient,
		logger:     logger,
	}
}

// GetForecast returns the demand forecast for a product, from cache when
// fresh enough
func (c *Client) GetForecast(ctx context.Context, productID uuid.UUID, history []allocation.SalesPoint) (*allocation.DemandForecast, error) {
	if !c.cfg.Enabled {
		return nil, allocation.ErrForecastDisabled
	}

	cacheKey := fmt.Sprintf("forecast:%s", productID)
	if cached := c.fromCache(ctx, cacheKey); cached != nil {
		return cached.toDomain(productID), nil
	}

	payload, err := json.Marshal(map[string]any{
		"product_id": productID.String(),
		"sales_data": toSalesPayload(history),
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/forecast", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("forecast: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrForecastUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrForecastUnavailable, resp.StatusCode)
	}

	var wire forecastResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrForecastUnavailable, err)
	}

	c.toCache(ctx, cacheKey, body)
	return wire.toDomain(productID), nil
}

// HealthCheck probes the forecast service
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.cfg.Enabled {
		return allocation.ErrForecastDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("forecast: failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrForecastUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) fromCache(ctx context.Context, key string) *forecastResponse {
	if c.redis == nil {
		return nil
	}

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("forecast cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	var wire forecastResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		c.logger.Warn("forecast cache entry corrupt, ignoring", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &wire
}

func (c *Client) toCache(ctx context.Context, key string, body []byte) {
	if c.redis == nil {
		return
	}

	ttl := c.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := c.redis.Set(ctx, key, body, ttl).Err(); err != nil {
		c.logger.Warn("forecast cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Ensure Client implements the domain forecaster port
var _ allocation.DemandForecaster = (*Client)(nil)
