package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

// ChannelRegistry is the single gateway for outbound channel traffic. Every
// call is gated by the channel's token bucket and circuit breaker, retried
// with exponential backoff on transient errors, and its outcome is folded
// back into the channel's reliability score.
type ChannelRegistry struct {
	mu         sync.RWMutex
	connectors map[channel.Type]channel.Connector
	states     map[uuid.UUID]*channelState

	channels channel.Repository
	creds    channel.CredentialStore
	cfg      config.SyncConfig
	logger   *zap.Logger
	metrics  MetricsRecorder
}

// MetricsRecorder receives call outcomes and breaker transitions.
// Implemented by telemetry.SyncMetrics.
type MetricsRecorder interface {
	RecordChannelCall(ctx context.Context, channelType channel.Type, callErr error)
	RecordBreakerTransition(ctx context.Context, channelID uuid.UUID, state channel.BreakerState)
}

// channelState is the in-memory guard for one channel. The breaker snapshot
// is mirrored onto the aggregate so it survives a restart.
type channelState struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	breaker  channel.BreakerState
	openedAt time.Time
	failures []time.Time
	// probing is true while a half-open trial call is in flight
	probing bool
}

// NewChannelRegistry creates a registry with no connectors registered
func NewChannelRegistry(channels channel.Repository, creds channel.CredentialStore, cfg config.SyncConfig, logger *zap.Logger) *ChannelRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelRegistry{
		connectors: make(map[channel.Type]channel.Connector),
		states:     make(map[uuid.UUID]*channelState),
		channels:   channels,
		creds:      creds,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetrics sets the outcome recorder. Without one outcomes are not counted.
func (r *ChannelRegistry) SetMetrics(metrics MetricsRecorder) {
	r.metrics = metrics
}

// Register adds a connector for its channel type, replacing any previous one
func (r *ChannelRegistry) Register(conn channel.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[conn.ChannelType()] = conn
}

// PushInventory writes a quantity through the guarded connector
func (r *ChannelRegistry) PushInventory(ctx context.Context, channelID uuid.UUID, productRef string, quantity decimal.Decimal) error {
	return r.execute(ctx, channelID, true, func(ctx context.Context, conn channel.Connector, creds *channel.Credentials) error {
		return conn.PushInventory(ctx, creds, productRef, quantity)
	})
}

// PullInventory reads quantities through the guarded connector
func (r *ChannelRegistry) PullInventory(ctx context.Context, channelID uuid.UUID, productRefs []string) (map[string]decimal.Decimal, error) {
	var result map[string]decimal.Decimal
	err := r.execute(ctx, channelID, true, func(ctx context.Context, conn channel.Connector, creds *channel.Credentials) error {
		var callErr error
		result, callErr = conn.PullInventory(ctx, creds, productRefs)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Authenticate verifies the channel's stored credentials
func (r *ChannelRegistry) Authenticate(ctx context.Context, channelID uuid.UUID) error {
	return r.execute(ctx, channelID, true, func(ctx context.Context, conn channel.Connector, creds *channel.Credentials) error {
		return conn.Authenticate(ctx, creds)
	})
}

// HealthCheck probes the channel. Probes bypass the token bucket so an
// operator can always check a throttled channel, but outcomes still feed
// the breaker.
func (r *ChannelRegistry) HealthCheck(ctx context.Context, channelID uuid.UUID) (channel.HealthStatus, error) {
	var status channel.HealthStatus
	err := r.execute(ctx, channelID, false, func(ctx context.Context, conn channel.Connector, creds *channel.Credentials) error {
		var callErr error
		status, callErr = conn.HealthCheck(ctx, creds)
		return callErr
	})
	return status, err
}

// VerifyWebhookSignature validates an inbound webhook signature. Verification
// is pure computation, so neither the limiter nor the breaker applies.
func (r *ChannelRegistry) VerifyWebhookSignature(ctx context.Context, channelID uuid.UUID, payload []byte, signatureHeader string) (bool, error) {
	ch, err := r.channels.FindByID(ctx, channelID)
	if err != nil {
		return false, err
	}

	conn, err := r.connector(ch.Type)
	if err != nil {
		return false, err
	}

	creds, err := r.creds.Resolve(ctx, ch.CredentialRef)
	if err != nil {
		return false, fmt.Errorf("resolve credentials for channel %s: %w", channelID, err)
	}

	return conn.VerifyWebhookSignature(payload, signatureHeader, creds.WebhookSecret), nil
}

// BreakerState reports the current breaker state for a channel. Channels the
// registry has not touched yet report CLOSED.
func (r *ChannelRegistry) BreakerState(channelID uuid.UUID) channel.BreakerState {
	r.mu.RLock()
	state, ok := r.states[channelID]
	r.mu.RUnlock()
	if !ok {
		return channel.BreakerClosed
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.breaker
}

// ForceBreaker manually overrides the breaker and persists the decision
func (r *ChannelRegistry) ForceBreaker(channelID uuid.UUID, breakerState channel.BreakerState) error {
	ctx := context.Background()
	ch, err := r.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}

	state := r.ensureState(ch)
	state.mu.Lock()
	state.breaker = breakerState
	state.failures = nil
	state.probing = false
	var openedAt *time.Time
	if breakerState == channel.BreakerOpen {
		now := time.Now()
		state.openedAt = now
		openedAt = &now
	} else {
		state.openedAt = time.Time{}
	}
	state.mu.Unlock()

	ch.SetBreaker(breakerState, openedAt)
	if err := r.channels.Save(ctx, ch); err != nil {
		return fmt.Errorf("persist breaker override for channel %s: %w", channelID, err)
	}
	if r.metrics != nil {
		r.metrics.RecordBreakerTransition(ctx, channelID, breakerState)
	}

	r.logger.Info("breaker forced",
		zap.String("channel_id", channelID.String()),
		zap.String("state", string(breakerState)))
	return nil
}

// Evict drops cached connector state for a channel. Called after
// deactivation or credential rotation so stale limiters and breaker
// counters do not outlive the channel's configuration.
func (r *ChannelRegistry) Evict(channelID uuid.UUID) {
	r.mu.Lock()
	delete(r.states, channelID)
	r.mu.Unlock()
}

// execute runs one guarded connector call: breaker gate, token bucket,
// bounded retry, then outcome accounting.
func (r *ChannelRegistry) execute(ctx context.Context, channelID uuid.UUID, rateLimited bool, call func(context.Context, channel.Connector, *channel.Credentials) error) error {
	ch, err := r.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.IsActive {
		return channel.ErrChannelInactive
	}

	conn, err := r.connector(ch.Type)
	if err != nil {
		return err
	}

	creds, err := r.creds.Resolve(ctx, ch.CredentialRef)
	if err != nil {
		return fmt.Errorf("resolve credentials for channel %s: %w", channelID, err)
	}

	state := r.ensureState(ch)
	if err := r.passBreaker(state, channelID); err != nil {
		return err
	}

	if rateLimited {
		if err := state.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	callErr := r.callWithRetry(ctx, channelID, conn, creds, call)
	r.account(ctx, ch, state, callErr)
	return callErr
}

// callWithRetry retries transient errors with exponential backoff. Permanent
// errors (auth, unknown product) fail the call immediately.
func (r *ChannelRegistry) callWithRetry(ctx context.Context, channelID uuid.UUID, conn channel.Connector, creds *channel.Credentials, call func(context.Context, channel.Connector, *channel.Credentials) error) error {
	maxAttempts := r.cfg.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = call(ctx, conn, creds)
		if lastErr == nil {
			return nil
		}
		if !channel.IsRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		backoff := r.cfg.RetryBackoffBase * time.Duration(1<<(attempt-1))
		if backoff > time.Minute {
			backoff = time.Minute
		}
		r.logger.Warn("channel call failed, retrying",
			zap.String("channel_id", channelID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// passBreaker applies the breaker gate. An open breaker whose cooldown has
// elapsed moves to half-open and admits exactly one probe call.
func (r *ChannelRegistry) passBreaker(state *channelState, channelID uuid.UUID) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.breaker {
	case channel.BreakerOpen:
		if time.Since(state.openedAt) < r.cfg.BreakerCooldown {
			return fmt.Errorf("%w: channel %s cooling down", channel.ErrBreakerOpen, channelID)
		}
		state.breaker = channel.BreakerHalfOpen
		state.probing = true
		r.logger.Info("breaker half-open, admitting probe", zap.String("channel_id", channelID.String()))
		return nil
	case channel.BreakerHalfOpen:
		if state.probing {
			return fmt.Errorf("%w: channel %s probe in flight", channel.ErrBreakerOpen, channelID)
		}
		state.probing = true
		return nil
	default:
		return nil
	}
}

// account folds the call outcome into the breaker and the channel's
// reliability score, persisting the aggregate when either changed.
func (r *ChannelRegistry) account(ctx context.Context, ch *channel.Channel, state *channelState, callErr error) {
	state.mu.Lock()

	now := time.Now()
	var newBreaker channel.BreakerState
	var openedAt *time.Time
	changed := false

	if callErr == nil {
		// Success closes a half-open breaker and clears the failure window
		if state.breaker != channel.BreakerClosed {
			state.breaker = channel.BreakerClosed
			state.openedAt = time.Time{}
			changed = true
		}
		state.failures = nil
		state.probing = false
		newBreaker = state.breaker
	} else {
		state.probing = false
		if state.breaker == channel.BreakerHalfOpen {
			// Failed probe reopens immediately
			state.breaker = channel.BreakerOpen
			state.openedAt = now
			state.failures = nil
			changed = true
		} else {
			state.failures = append(state.failures, now)
			state.failures = pruneWindow(state.failures, now.Add(-r.cfg.BreakerFailureWindow))
			if len(state.failures) >= r.cfg.BreakerFailureThreshold && state.breaker == channel.BreakerClosed {
				state.breaker = channel.BreakerOpen
				state.openedAt = now
				state.failures = nil
				changed = true
			}
		}
		newBreaker = state.breaker
		if newBreaker == channel.BreakerOpen {
			opened := state.openedAt
			openedAt = &opened
		}
	}
	state.mu.Unlock()

	if callErr == nil {
		ch.RecordSuccess()
	} else {
		ch.RecordFailure()
	}
	if r.metrics != nil {
		r.metrics.RecordChannelCall(ctx, ch.Type, callErr)
	}
	if changed {
		ch.SetBreaker(newBreaker, openedAt)
		if r.metrics != nil {
			r.metrics.RecordBreakerTransition(ctx, ch.ID, newBreaker)
		}
		r.logger.Info("breaker state changed",
			zap.String("channel_id", ch.ID.String()),
			zap.String("state", string(newBreaker)))
	}

	if err := r.channels.Save(ctx, ch); err != nil {
		r.logger.Error("failed to persist channel outcome",
			zap.String("channel_id", ch.ID.String()),
			zap.Error(err))
	}
}

// ensureState returns the guard for a channel, creating it from the
// channel's rate-limit profile and persisted breaker snapshot on first use
func (r *ChannelRegistry) ensureState(ch *channel.Channel) *channelState {
	r.mu.RLock()
	state, ok := r.states[ch.ID]
	r.mu.RUnlock()
	if ok {
		return state
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok = r.states[ch.ID]; ok {
		return state
	}

	qps := ch.RateLimitQPS
	burst := ch.RateLimitBurst
	if qps <= 0 {
		qps = r.cfg.DefaultRateLimitQPS
	}
	if burst <= 0 {
		burst = r.cfg.DefaultRateLimitBurst
	}

	state = &channelState{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		breaker: ch.Breaker,
	}
	if state.breaker == "" {
		state.breaker = channel.BreakerClosed
	}
	if ch.BreakerOpenedAt != nil {
		state.openedAt = *ch.BreakerOpenedAt
	}
	r.states[ch.ID] = state
	return state
}

func (r *ChannelRegistry) connector(channelType channel.Type) (channel.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connectors[channelType]
	if !ok {
		return nil, fmt.Errorf("%w: no connector registered for type %s", channel.ErrInvalidChannelType, channelType)
	}
	return conn, nil
}

// pruneWindow drops failure timestamps older than the cutoff
func pruneWindow(failures []time.Time, cutoff time.Time) []time.Time {
	kept := failures[:0]
	for _, ts := range failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Ensure ChannelRegistry implements the Registry port
var _ channel.Registry = (*ChannelRegistry)(nil)
