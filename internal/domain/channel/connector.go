package channel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// Connector call errors. The registry classifies these to decide on
	// retry, breaker accounting and reliability updates.
	ErrAuthFailed      = errors.New("channel: authentication failed")
	ErrRateLimited     = errors.New("channel: remote rate limit hit")
	ErrRequestFailed   = errors.New("channel: request failed")
	ErrInvalidResponse = errors.New("channel: invalid response from channel")
	ErrProductNotFound = errors.New("channel: product not found on channel")
	ErrBreakerOpen     = errors.New("channel: circuit breaker open")
)

// IsRetryable reports whether an error is worth retrying with backoff.
// Authentication failures and missing products are permanent; transport
// failures and remote throttling are not.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrRequestFailed), errors.Is(err, ErrInvalidResponse):
		return true
	default:
		return false
	}
}

// Credentials are the per-channel secrets supplied by the credential store
type Credentials struct {
	APIKey        string
	APISecret     string
	AccessToken   string
	WebhookSecret string
	// Endpoint overrides the channel's default API base URL (generic REST)
	Endpoint string
}

// CredentialStore is the collaborator contract for secret resolution.
// Acquisition flows (OAuth etc.) are outside this core.
type CredentialStore interface {
	Resolve(ctx context.Context, credentialRef string) (*Credentials, error)
}

// HealthStatus is the result of a connector health probe
type HealthStatus struct {
	Healthy   bool
	Detail    string
	CheckedAt time.Time
	Latency   time.Duration
}

// Connector is the uniform capability surface implemented once per channel
// type. Implementations live in the infrastructure layer; channel-specific
// quirks stay behind this interface.
type Connector interface {
	// ChannelType returns the channel type this connector handles
	ChannelType() Type

	// Authenticate verifies the credentials against the channel API
	Authenticate(ctx context.Context, creds *Credentials) error

	// PushInventory writes an absolute quantity for a channel-native product reference
	PushInventory(ctx context.Context, creds *Credentials, productRef string, quantity decimal.Decimal) error

	// PullInventory reads current quantities for the given channel-native references
	PullInventory(ctx context.Context, creds *Credentials, productRefs []string) (map[string]decimal.Decimal, error)

	// HealthCheck probes channel availability
	HealthCheck(ctx context.Context, creds *Credentials) (HealthStatus, error)

	// VerifyWebhookSignature checks an inbound payload's HMAC signature using
	// constant-time comparison. It must never perform network I/O.
	VerifyWebhookSignature(payload []byte, signatureHeader string, secret string) bool
}

// Registry guards every connector call with the channel's token bucket,
// bounded retry and circuit breaker, and feeds outcomes back into the
// channel's reliability score. It is the only way the rest of the system
// talks to a channel.
type Registry interface {
	// PushInventory writes a quantity through the guarded connector
	PushInventory(ctx context.Context, channelID uuid.UUID, productRef string, quantity decimal.Decimal) error

	// PullInventory reads quantities through the guarded connector
	PullInventory(ctx context.Context, channelID uuid.UUID, productRefs []string) (map[string]decimal.Decimal, error)

	// Authenticate verifies the channel's stored credentials
	Authenticate(ctx context.Context, channelID uuid.UUID) error

	// HealthCheck probes the channel (not rate limited, still breaker accounted)
	HealthCheck(ctx context.Context, channelID uuid.UUID) (HealthStatus, error)

	// VerifyWebhookSignature validates an inbound webhook for the channel
	VerifyWebhookSignature(ctx context.Context, channelID uuid.UUID, payload []byte, signatureHeader string) (bool, error)

	// BreakerState reports the current breaker state for a channel
	BreakerState(channelID uuid.UUID) BreakerState

	// ForceBreaker manually overrides the breaker (operator action)
	ForceBreaker(channelID uuid.UUID, state BreakerState) error

	// Evict drops cached connector and breaker state for a channel
	// (called after deactivation or credential rotation)
	Evict(channelID uuid.UUID)
}
