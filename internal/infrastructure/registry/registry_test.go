package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

type stubChannelRepo struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*channel.Channel
	saves    int
}

func newStubChannelRepo(channels ...*channel.Channel) *stubChannelRepo {
	repo := &stubChannelRepo{channels: make(map[uuid.UUID]*channel.Channel)}
	for _, ch := range channels {
		repo.channels[ch.ID] = ch
	}
	return repo
}

func (r *stubChannelRepo) FindByID(_ context.Context, id uuid.UUID) (*channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, channel.ErrChannelNotFound
	}
	return ch, nil
}

func (r *stubChannelRepo) FindByStoreAndType(_ context.Context, _ uuid.UUID, _ channel.Type) (*channel.Channel, error) {
	return nil, channel.ErrChannelNotFound
}

func (r *stubChannelRepo) FindActiveByStore(_ context.Context, _ uuid.UUID) ([]*channel.Channel, error) {
	return nil, nil
}

func (r *stubChannelRepo) FindAllByStore(_ context.Context, _ uuid.UUID) ([]*channel.Channel, error) {
	return nil, nil
}

func (r *stubChannelRepo) Save(_ context.Context, ch *channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = ch
	r.saves++
	return nil
}

func (r *stubChannelRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
	return nil
}

type stubCredStore struct{}

func (stubCredStore) Resolve(_ context.Context, _ string) (*channel.Credentials, error) {
	return &channel.Credentials{AccessToken: "token", WebhookSecret: "secret"}, nil
}

// stubConnector returns queued errors in order, then succeeds
type stubConnector struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	sigOK  bool
	pulled map[string]decimal.Decimal
}

func (c *stubConnector) next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *stubConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *stubConnector) ChannelType() channel.Type { return channel.TypeGenericREST }

func (c *stubConnector) Authenticate(_ context.Context, _ *channel.Credentials) error {
	return c.next()
}

func (c *stubConnector) PushInventory(_ context.Context, _ *channel.Credentials, _ string, _ decimal.Decimal) error {
	return c.next()
}

func (c *stubConnector) PullInventory(_ context.Context, _ *channel.Credentials, _ []string) (map[string]decimal.Decimal, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return c.pulled, nil
}

func (c *stubConnector) HealthCheck(_ context.Context, _ *channel.Credentials) (channel.HealthStatus, error) {
	err := c.next()
	return channel.HealthStatus{Healthy: err == nil, CheckedAt: time.Now()}, err
}

func (c *stubConnector) VerifyWebhookSignature(_ []byte, _, _ string) bool { return c.sigOK }

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		BreakerFailureThreshold: 3,
		BreakerFailureWindow:    time.Minute,
		BreakerCooldown:         50 * time.Millisecond,
		MaxRetryAttempts:        4,
		RetryBackoffBase:        time.Millisecond,
		DefaultRateLimitQPS:     1000,
		DefaultRateLimitBurst:   1000,
	}
}

func testChannel(t *testing.T) *channel.Channel {
	t.Helper()
	ch, err := channel.NewChannel(uuid.New(), "custom", channel.TypeGenericREST, "cred-ref", 1)
	require.NoError(t, err)
	require.NoError(t, ch.SetRateLimit(1000, 1000))
	return ch
}

func newTestRegistry(t *testing.T, conn *stubConnector, channels ...*channel.Channel) (*ChannelRegistry, *stubChannelRepo) {
	t.Helper()
	repo := newStubChannelRepo(channels...)
	reg := NewChannelRegistry(repo, stubCredStore{}, testSyncConfig(), nil)
	reg.Register(conn)
	return reg, repo
}

func TestChannelRegistry_RetriesTransientErrors(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{channel.ErrRequestFailed, channel.ErrRateLimited}}
	reg, _ := newTestRegistry(t, conn, ch)

	err := reg.PushInventory(context.Background(), ch.ID, "sku-a", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Equal(t, 3, conn.callCount())
}

func TestChannelRegistry_PermanentErrorNotRetried(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{channel.ErrAuthFailed}}
	reg, _ := newTestRegistry(t, conn, ch)

	err := reg.Authenticate(context.Background(), ch.ID)
	assert.ErrorIs(t, err, channel.ErrAuthFailed)
	assert.Equal(t, 1, conn.callCount())
}

func TestChannelRegistry_RetryBudgetExhausted(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{
		channel.ErrRequestFailed, channel.ErrRequestFailed,
		channel.ErrRequestFailed, channel.ErrRequestFailed,
	}}
	reg, _ := newTestRegistry(t, conn, ch)

	err := reg.PushInventory(context.Background(), ch.ID, "sku-a", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, channel.ErrRequestFailed)
	assert.Equal(t, 4, conn.callCount())
}

func TestChannelRegistry_InactiveChannelRejected(t *testing.T) {
	ch := testChannel(t)
	ch.Deactivate()
	conn := &stubConnector{}
	reg, _ := newTestRegistry(t, conn, ch)

	err := reg.PushInventory(context.Background(), ch.ID, "sku-a", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, channel.ErrChannelInactive)
	assert.Zero(t, conn.callCount())
}

func TestChannelRegistry_BreakerOpensAfterThreshold(t *testing.T) {
	ch := testChannel(t)
	// Each failed call exhausts the 4-attempt retry budget and counts as
	// one breaker failure. ErrAuthFailed keeps the test to one call each.
	conn := &stubConnector{errs: []error{
		channel.ErrAuthFailed, channel.ErrAuthFailed, channel.ErrAuthFailed,
	}}
	reg, _ := newTestRegistry(t, conn, ch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, reg.Authenticate(ctx, ch.ID))
	}
	assert.Equal(t, channel.BreakerOpen, reg.BreakerState(ch.ID))
	assert.Equal(t, channel.BreakerOpen, ch.Breaker)
	require.NotNil(t, ch.BreakerOpenedAt)

	// While cooling down, calls are rejected without touching the connector
	before := conn.callCount()
	err := reg.Authenticate(ctx, ch.ID)
	assert.ErrorIs(t, err, channel.ErrBreakerOpen)
	assert.Equal(t, before, conn.callCount())
}

func TestChannelRegistry_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{
		channel.ErrAuthFailed, channel.ErrAuthFailed, channel.ErrAuthFailed,
	}}
	reg, _ := newTestRegistry(t, conn, ch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, reg.Authenticate(ctx, ch.ID))
	}
	require.Equal(t, channel.BreakerOpen, reg.BreakerState(ch.ID))

	time.Sleep(60 * time.Millisecond)

	// Cooldown elapsed: the next call is a probe, and it succeeds
	require.NoError(t, reg.Authenticate(ctx, ch.ID))
	assert.Equal(t, channel.BreakerClosed, reg.BreakerState(ch.ID))
	assert.Equal(t, channel.BreakerClosed, ch.Breaker)
	assert.Nil(t, ch.BreakerOpenedAt)
}

func TestChannelRegistry_HalfOpenProbeReopensOnFailure(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{
		channel.ErrAuthFailed, channel.ErrAuthFailed, channel.ErrAuthFailed,
		channel.ErrAuthFailed,
	}}
	reg, _ := newTestRegistry(t, conn, ch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, reg.Authenticate(ctx, ch.ID))
	}
	time.Sleep(60 * time.Millisecond)

	err := reg.Authenticate(ctx, ch.ID)
	assert.ErrorIs(t, err, channel.ErrAuthFailed)
	assert.Equal(t, channel.BreakerOpen, reg.BreakerState(ch.ID))
}

func TestChannelRegistry_ReliabilityScoreTracksOutcomes(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{errs: []error{channel.ErrAuthFailed}}
	reg, _ := newTestRegistry(t, conn, ch)
	ctx := context.Background()

	require.Error(t, reg.Authenticate(ctx, ch.ID))
	// One failure: 0.1*0 + 0.9*1.0 = 0.9
	assert.True(t, ch.ReliabilityScore.Equal(decimal.NewFromFloat(0.9)),
		"got %s", ch.ReliabilityScore)

	require.NoError(t, reg.Authenticate(ctx, ch.ID))
	// Then a success: 0.1*1 + 0.9*0.9 = 0.91
	assert.True(t, ch.ReliabilityScore.Equal(decimal.NewFromFloat(0.91)),
		"got %s", ch.ReliabilityScore)
}

func TestChannelRegistry_PullInventoryReturnsQuantities(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{pulled: map[string]decimal.Decimal{
		"sku-a": decimal.NewFromInt(100),
	}}
	reg, _ := newTestRegistry(t, conn, ch)

	result, err := reg.PullInventory(context.Background(), ch.ID, []string{"sku-a"})
	require.NoError(t, err)
	assert.True(t, result["sku-a"].Equal(decimal.NewFromInt(100)))
}

func TestChannelRegistry_VerifyWebhookSignature(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{sigOK: true}
	reg, _ := newTestRegistry(t, conn, ch)

	ok, err := reg.VerifyWebhookSignature(context.Background(), ch.ID, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = reg.VerifyWebhookSignature(context.Background(), uuid.New(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, channel.ErrChannelNotFound)
}

func TestChannelRegistry_ForceBreaker(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{}
	reg, _ := newTestRegistry(t, conn, ch)

	require.NoError(t, reg.ForceBreaker(ch.ID, channel.BreakerOpen))
	assert.Equal(t, channel.BreakerOpen, reg.BreakerState(ch.ID))
	assert.Equal(t, channel.BreakerOpen, ch.Breaker)

	err := reg.Authenticate(context.Background(), ch.ID)
	assert.ErrorIs(t, err, channel.ErrBreakerOpen)

	require.NoError(t, reg.ForceBreaker(ch.ID, channel.BreakerClosed))
	assert.NoError(t, reg.Authenticate(context.Background(), ch.ID))
}

func TestChannelRegistry_EvictDropsState(t *testing.T) {
	ch := testChannel(t)
	conn := &stubConnector{}
	reg, _ := newTestRegistry(t, conn, ch)

	require.NoError(t, reg.ForceBreaker(ch.ID, channel.BreakerOpen))
	require.Equal(t, channel.BreakerOpen, reg.BreakerState(ch.ID))

	reg.Evict(ch.ID)
	assert.Equal(t, channel.BreakerClosed, reg.BreakerState(ch.ID))
}
