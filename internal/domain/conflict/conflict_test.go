package conflict

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingConflict(t *testing.T) *SyncConflict {
	t.Helper()
	now := time.Now()
	c, err := NewSyncConflict(uuid.New(), uuid.New(), TypeStockMismatch, []Observation{
		obs(channelA, "SHOPIFY", 100, now, 0.9),
		obs(channelB, "AMAZON", 95, now, 0.8),
	})
	require.NoError(t, err)
	return c
}

func TestNewSyncConflict(t *testing.T) {
	_, err := NewSyncConflict(uuid.New(), uuid.New(), TypeStockMismatch, nil)
	assert.ErrorIs(t, err, ErrNoObservations)

	c := newPendingConflict(t)
	assert.Equal(t, StatusPending, c.Status)
	assert.True(t, c.Discrepancy.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, SeverityMedium, c.Severity)

	events := c.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventConflictDetected, events[0].EventType())
}

func TestRecordResolution(t *testing.T) {
	t.Run("value-bearing outcome moves to resolving", func(t *testing.T) {
		c := newPendingConflict(t)

		res, err := Resolve(StrategyConservative, c.Observations, Options{})
		require.NoError(t, err)
		require.NoError(t, c.RecordResolution(res))

		assert.Equal(t, StatusResolving, c.Status)
		require.NotNil(t, c.ResolvedValue)
		assert.True(t, c.ResolvedValue.Equal(decimal.NewFromInt(95)))
		assert.False(t, c.IsClosed())
	})

	t.Run("manual outcome parks the conflict for an operator", func(t *testing.T) {
		c := newPendingConflict(t)
		c.ClearDomainEvents()

		res, err := Resolve(StrategyManualReview, c.Observations, Options{})
		require.NoError(t, err)
		require.NoError(t, c.RecordResolution(res))

		assert.Equal(t, StatusManualReview, c.Status)
		assert.Nil(t, c.ResolvedValue)

		events := c.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventConflictEscalated, events[0].EventType())
	})
}

func TestClose(t *testing.T) {
	t.Run("closing before a resolution is recorded fails", func(t *testing.T) {
		c := newPendingConflict(t)
		assert.ErrorIs(t, c.Close(false), ErrNoResolutionRecorded)
	})

	t.Run("close finalizes the conflict", func(t *testing.T) {
		c := newPendingConflict(t)
		res, err := Resolve(StrategyConservative, c.Observations, Options{})
		require.NoError(t, err)
		require.NoError(t, c.RecordResolution(res))

		require.NoError(t, c.Close(false))
		assert.Equal(t, StatusResolved, c.Status)
		assert.True(t, c.IsClosed())
		assert.False(t, c.ResolvedPartially)
		require.NotNil(t, c.ResolvedAt)
	})

	t.Run("accepting a partial push records the flag", func(t *testing.T) {
		c := newPendingConflict(t)
		res, err := Resolve(StrategyConservative, c.Observations, Options{})
		require.NoError(t, err)
		require.NoError(t, c.RecordResolution(res))

		require.NoError(t, c.Close(true))
		assert.True(t, c.ResolvedPartially)
	})

	t.Run("closed conflicts are immutable", func(t *testing.T) {
		c := newPendingConflict(t)
		res, err := Resolve(StrategyConservative, c.Observations, Options{})
		require.NoError(t, err)
		require.NoError(t, c.RecordResolution(res))
		require.NoError(t, c.Close(false))

		assert.ErrorIs(t, c.Close(false), ErrConflictClosed)
		assert.ErrorIs(t, c.RecordResolution(res), ErrConflictClosed)
	})
}
