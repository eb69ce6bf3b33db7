package channel

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/shared"
)

var (
	ErrChannelNotFound      = errors.New("channel: channel not found")
	ErrChannelInactive      = errors.New("channel: channel is not active")
	ErrInvalidChannelType   = errors.New("channel: invalid channel type")
	ErrInvalidRateLimit     = errors.New("channel: rate limit must be positive")
	ErrMissingCredentialRef = errors.New("channel: credential reference is required")
)

// reliabilityAlpha is the smoothing factor for the exponential moving average
// of call outcomes. A new observation contributes 10% to the score.
const reliabilityAlpha = 0.1

// Type identifies the kind of external sales channel
type Type string

const (
	// TypeShopify is a Shopify storefront
	TypeShopify Type = "SHOPIFY"
	// TypeSquare is a Square point-of-sale location
	TypeSquare Type = "SQUARE"
	// TypeAmazon is an Amazon marketplace seller account
	TypeAmazon Type = "AMAZON"
	// TypeGenericREST is a custom channel speaking the generic REST contract
	TypeGenericREST Type = "GENERIC_REST"
)

// IsValid returns true if the channel type is known
func (t Type) IsValid() bool {
	switch t {
	case TypeShopify, TypeSquare, TypeAmazon, TypeGenericREST:
		return true
	default:
		return false
	}
}

// String returns the string representation of the channel type
func (t Type) String() string {
	return string(t)
}

// BreakerState is the persisted circuit-breaker state for a channel.
// The registry reconstructs its in-memory breaker from this on restart.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Channel is an external sales platform connected to a store. It owns the
// per-channel rate-limit profile, the credential reference used to look up
// secrets, and the reliability score consumed by weighted conflict resolution.
type Channel struct {
	shared.StoreAggregateRoot

	Name          string
	Type          Type
	IsActive      bool
	Priority      int // lower value = higher priority for source_priority and priority_based strategies
	CredentialRef string

	// Rate-limit profile applied by the registry's token bucket
	RateLimitQPS   float64
	RateLimitBurst int

	// ReliabilityScore in [0,1], updated by an EMA of call outcomes
	ReliabilityScore decimal.Decimal

	// Breaker snapshot, owned by the registry
	Breaker         BreakerState
	BreakerOpenedAt *time.Time

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}

// NewChannel creates a newly connected channel. Channels start active with a
// neutral reliability score of 1.0 and a closed breaker.
func NewChannel(storeID uuid.UUID, name string, channelType Type, credentialRef string, priority int) (*Channel, error) {
	if !channelType.IsValid() {
		return nil, ErrInvalidChannelType
	}
	if credentialRef == "" {
		return nil, ErrMissingCredentialRef
	}

	return &Channel{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		Name:               name,
		Type:               channelType,
		IsActive:           true,
		Priority:           priority,
		CredentialRef:      credentialRef,
		RateLimitQPS:       2,
		RateLimitBurst:     4,
		ReliabilityScore:   decimal.NewFromInt(1),
		Breaker:            BreakerClosed,
	}, nil
}

// SetRateLimit updates the rate-limit profile applied by the registry
func (c *Channel) SetRateLimit(qps float64, burst int) error {
	if qps <= 0 || burst <= 0 {
		return ErrInvalidRateLimit
	}
	c.RateLimitQPS = qps
	c.RateLimitBurst = burst
	c.Touch()
	return nil
}

// Deactivate disconnects the channel. Sync jobs skip inactive channels and
// their product mappings are no longer considered authoritative.
func (c *Channel) Deactivate() {
	c.IsActive = false
	c.Touch()
}

// Activate reconnects the channel
func (c *Channel) Activate() {
	c.IsActive = true
	c.Touch()
}

// RecordSuccess folds a successful call into the reliability score
func (c *Channel) RecordSuccess() {
	now := time.Now()
	c.LastSuccessAt = &now
	c.updateReliability(decimal.NewFromInt(1))
}

// RecordFailure folds a failed call into the reliability score
func (c *Channel) RecordFailure() {
	now := time.Now()
	c.LastFailureAt = &now
	c.updateReliability(decimal.Zero)
}

// updateReliability applies score = alpha*outcome + (1-alpha)*score
func (c *Channel) updateReliability(outcome decimal.Decimal) {
	alpha := decimal.NewFromFloat(reliabilityAlpha)
	one := decimal.NewFromInt(1)
	c.ReliabilityScore = alpha.Mul(outcome).Add(one.Sub(alpha).Mul(c.ReliabilityScore))
	c.Touch()
}

// SetBreaker records the registry's breaker decision on the aggregate so it
// survives a restart
func (c *Channel) SetBreaker(state BreakerState, openedAt *time.Time) {
	c.Breaker = state
	c.BreakerOpenedAt = openedAt
	c.Touch()
}
